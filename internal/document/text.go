package document

import (
	"fmt"
	"io"
	"text/template"
	"time"

	"github.com/rentaldesk/rentals/internal/types"
)

// TextRenderer renders plain-text documents. It is the renderer used when
// no PDF backend is configured.
type TextRenderer struct{}

var funcs = template.FuncMap{
	"date": func(v any) string {
		switch t := v.(type) {
		case interface{ Format(string) string }:
			return t.Format("02/01/2006")
		default:
			return fmt.Sprint(v)
		}
	},
	"money": func(c types.Cents) string { return "R$ " + c.String() },
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
	"derefTime": func(t *time.Time) any {
		if t == nil {
			return ""
		}
		return *t
	},
}

var contractTmpl = template.Must(template.New("contract").Funcs(funcs).Parse(`RESIDENTIAL LEASE CONTRACT No. {{.Contract.ID}}

LANDLORD: {{.Owner.Name}}, document {{.Owner.Document}}, {{.Owner.Address.Format}}
TENANT: {{.Tenant.Name}}, document {{.Tenant.Document}}{{with .Tenant.Guarantor}}
GUARANTOR: {{.Name}}, document {{.Document}}{{end}}
PROPERTY: {{.Property.Type}} at {{.Property.Address.Format}}

Term: {{.Contract.Duration}} months, from {{date .Contract.StartDate}} to {{date .Contract.EndDate}}.
Monthly rent: {{money .Contract.RentValue}}, due every day {{.Contract.PaymentDay}}.
{{with .Contract.Observations}}
Notes: {{.}}
{{end}}`))

var receiptTmpl = template.Must(template.New("receipt").Funcs(funcs).Parse(`RENT RECEIPT {{deref .Payment.ReceiptNumber}}

Received from {{.Tenant.Name}} ({{.Tenant.Document}}) the amount of {{money .Payment.Total}}
for the rent of {{.Property.Address.Format}}, contract No. {{.Contract.ID}},
installment due {{date .Payment.DueDate}}.

Rent: {{money .Payment.Value}}
Late fee: {{money .Payment.LatePaymentFee}}
Interest: {{money .Payment.InterestAmount}}
Paid on {{date (derefTime .Payment.PaymentDate)}} via {{deref .Payment.PaymentMethod}}.

Landlord: {{.Owner.Name}}
`))

func (TextRenderer) ContentType() string { return "text/plain; charset=utf-8" }

func (TextRenderer) RenderContract(w io.Writer, doc *ContractDocument) error {
	return contractTmpl.Execute(w, doc)
}

func (TextRenderer) RenderReceipt(w io.Writer, doc *ReceiptDocument) error {
	return receiptTmpl.Execute(w, doc)
}
