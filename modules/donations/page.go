package donations

import (
	"context"
	"embed"
	"log/slog"

	"github.com/TheLab-ms/tipjar/internal/templates"
	"github.com/TheLab-ms/tipjar/modules/airtable"
	"github.com/TheLab-ms/tipjar/modules/bootstrap"
	"github.com/TheLab-ms/tipjar/modules/pricing"
)

//go:embed templates/*.html
var templateFS embed.FS

var indexTemplate = templates.MustParseFS(templateFS, "templates/index.html")

var presets = []int64{1, 3, 5}

type formState struct {
	Quantity int64
	Name     string
	Message  string
	Error    string
}

type donationView struct {
	Name    string
	Message string
	Amount  string
	When    string
}

type indexData struct {
	formState
	Status     string
	Donations  []donationView
	Presets    []int64
	MaxUnits   int64
	UnitAmount int64
	Total      string
}

func (m *Module) page(ctx context.Context, form formState, status string) templates.Component {
	records, err := m.lister.ListRecent(ctx, m.limit)
	if err != nil {
		slog.Error("unable to list recent donations", "error", err)
		records = nil
	}
	if len(records) > m.limit {
		records = records[:m.limit]
	}

	data := &indexData{
		formState:  form,
		Status:     status,
		Donations:  make([]donationView, len(records)),
		MaxUnits:   m.pricing.MaxUnits(),
		UnitAmount: m.pricing.UnitAmount,
		Total:      pricing.Major(m.pricing.Total(form.Quantity)).String(),
	}
	for _, p := range presets {
		if p <= data.MaxUnits {
			data.Presets = append(data.Presets, p)
		}
	}
	for i, rec := range records {
		data.Donations[i] = newDonationView(rec)
	}

	return bootstrap.View("Buy me a beer", &templates.TemplateComponent{
		Template: indexTemplate,
		Data:     data,
	})
}

func newDonationView(rec airtable.Record) donationView {
	v := donationView{
		Name:    rec.Fields.Name,
		Message: rec.Fields.Message,
		Amount:  rec.Fields.Amount.String(),
	}
	if v.Name == "" {
		v.Name = "Someone"
	}
	if !rec.CreatedTime.IsZero() {
		v.When = rec.CreatedTime.UTC().Format("Jan 2, 2006")
	}
	return v
}
