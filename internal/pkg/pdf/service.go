// internal/pkg/pdf/service.go
package pdf

import (
	"bytes"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"

	"github.com/SebastiaanKlippert/go-wkhtmltopdf"
	"github.com/your-org/storefront-engine/internal/config"
	"github.com/your-org/storefront-engine/internal/domain/order"
)

var invoiceTmpl = template.Must(template.New("invoice").Funcs(template.FuncMap{
	"money": formatMoney,
}).Parse(invoiceTemplate))

// Service renders order invoices
type Service struct {
	company config.InvoiceConfig
	now     func() time.Time
}

// NewService creates a new PDF service
func NewService(cfg config.InvoiceConfig) *Service {
	return &Service{company: cfg, now: time.Now}
}

// InvoiceData is passed to the invoice template
type InvoiceData struct {
	InvoiceNumber string
	InvoiceDate   string
	Order         *order.Order
	Company       config.InvoiceConfig
}

// InvoiceNumber derives a stable invoice number from the order id
func InvoiceNumber(o *order.Order) string {
	id := strings.ToUpper(strings.ReplaceAll(o.ID, "-", ""))
	if len(id) > 12 {
		id = id[:12]
	}
	return fmt.Sprintf("INV-%s-%s", o.CreatedAt.UTC().Format("20060102"), id)
}

// RenderHTML renders the invoice page for o
func (s *Service) RenderHTML(o *order.Order) ([]byte, error) {
	data := InvoiceData{
		InvoiceNumber: InvoiceNumber(o),
		InvoiceDate:   s.now().Format("January 2, 2006"),
		Order:         o,
		Company:       s.company,
	}

	var buf bytes.Buffer
	if err := invoiceTmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.Bytes(), nil
}

// GenerateInvoice converts the rendered invoice to PDF. It needs the
// wkhtmltopdf binary on PATH.
func (s *Service) GenerateInvoice(o *order.Order) (*bytes.Buffer, error) {
	html, err := s.RenderHTML(o)
	if err != nil {
		return nil, fmt.Errorf("failed to generate HTML: %w", err)
	}

	pdfg, err := wkhtmltopdf.NewPDFGenerator()
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF generator: %w", err)
	}
	pdfg.Dpi.Set(300)
	pdfg.Orientation.Set(wkhtmltopdf.OrientationPortrait)
	pdfg.PageSize.Set(wkhtmltopdf.PageSizeA4)

	page := wkhtmltopdf.NewPageReader(bytes.NewReader(html))
	page.FooterRight.Set("[page]")
	page.FooterFontSize.Set(9)
	pdfg.AddPage(page)

	if err := pdfg.Create(); err != nil {
		return nil, fmt.Errorf("failed to create PDF: %w", err)
	}
	return bytes.NewBuffer(pdfg.Bytes()), nil
}

// formatMoney prints minor units with dot thousand separators, e.g. 270.000
func formatMoney(v int64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	digits := strconv.FormatInt(v, 10)
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

const invoiceTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Invoice {{.InvoiceNumber}}</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 0; padding: 20px; color: #333; }
        .header { border-bottom: 2px solid #eee; padding-bottom: 20px; margin-bottom: 30px; }
        .invoice-title { font-size: 28px; font-weight: bold; color: #2563eb; }
        table.items { width: 100%; border-collapse: collapse; margin-top: 20px; }
        table.items th { background: #f8fafc; text-align: left; padding: 8px; border-bottom: 2px solid #e2e8f0; }
        table.items td { padding: 8px; border-bottom: 1px solid #e2e8f0; }
        .right { text-align: right; }
        .totals { margin-top: 20px; width: 40%; margin-left: auto; }
        .totals td { padding: 4px 0; }
        .grand { font-weight: bold; font-size: 16px; border-top: 2px solid #333; }
    </style>
</head>
<body>
    <div class="header">
        <div class="invoice-title">INVOICE</div>
        <div>{{.InvoiceNumber}}</div>
        <div>{{.InvoiceDate}}</div>
        <div><strong>{{.Company.CompanyName}}</strong></div>
        {{if .Company.CompanyAddress}}<div>{{.Company.CompanyAddress}}</div>{{end}}
        <div>{{.Company.CompanyEmail}}</div>
    </div>

    <div>
        <div><strong>Order:</strong> {{.Order.ID}}</div>
        <div><strong>Ship to:</strong> {{.Order.Address}}</div>
        <div><strong>Payment:</strong> {{.Order.PaymentMethod}}</div>
        <div><strong>Status:</strong> {{.Order.Status}}</div>
    </div>

    <table class="items">
        <thead>
            <tr><th>Product</th><th>Size</th><th class="right">Qty</th><th class="right">Price</th><th class="right">Total</th></tr>
        </thead>
        <tbody>
        {{range .Order.Lines}}
            <tr>
                <td>{{.ProductName}}</td>
                <td>{{.Size}}</td>
                <td class="right">{{.Quantity}}</td>
                <td class="right">{{money .Price}}</td>
                <td class="right">{{money .LineTotal}}</td>
            </tr>
        {{end}}
        </tbody>
    </table>

    <table class="totals">
        <tr><td>Subtotal</td><td class="right">{{.Company.Currency}} {{money .Order.SubtotalAmount}}</td></tr>
        <tr><td>Shipping</td><td class="right">{{.Company.Currency}} {{money .Order.ShippingAmount}}</td></tr>
        <tr class="grand"><td>Total</td><td class="right">{{.Company.Currency}} {{money .Order.TotalAmount}}</td></tr>
    </table>
</body>
</html>`
