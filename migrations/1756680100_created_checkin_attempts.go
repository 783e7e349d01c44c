package migrations

import (
	"github.com/pocketbase/pocketbase/core"
	m "github.com/pocketbase/pocketbase/migrations"
)

func init() {
	m.Register(func(app core.App) error {
		collection := core.NewBaseCollection("checkin_attempts")

		collection.Fields.Add(
			// empty when the scanned code never resolved to a ticket
			&core.TextField{
				Name: "ticket_id",
			},
			&core.TextField{
				Name:     "event_id",
				Required: true,
			},
			&core.TextField{
				Name:     "validator_id",
				Required: true,
			},
			&core.TextField{
				Name: "validator_name",
			},
			&core.SelectField{
				Name:      "outcome",
				Required:  true,
				MaxSelect: 1,
				Values: []string{
					"accepted",
					"rejected_already_used",
					"rejected_wrong_event",
					"rejected_refunded",
					"rejected_malformed",
					"rejected_forged",
					"rejected_unknown_ticket",
				},
			},
			&core.BoolField{
				Name: "manual_entry",
			},
			&core.TextField{
				Name: "location",
			},
			// forensic hash of unresolvable input, never the raw text
			&core.TextField{
				Name: "raw_hash",
			},
			&core.AutodateField{
				Name:     "created",
				OnCreate: true,
			},
		)

		collection.AddIndex("idx_attempts_event_created", false, "event_id, created", "")
		collection.AddIndex("idx_attempts_ticket_outcome", false, "ticket_id, outcome", "")

		return app.Save(collection)
	}, func(app core.App) error {
		collection, err := app.FindCollectionByNameOrId("checkin_attempts")
		if err != nil {
			return nil
		}
		return app.Delete(collection)
	})
}
