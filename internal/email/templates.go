package email

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	texttemplate "text/template"

	"github.com/storekit/storefront/internal/models"
	"github.com/storekit/storefront/internal/money"
)

type Kind string

const (
	KindOrderPlaced    Kind = "order_placed"
	KindOrderShipped   Kind = "order_shipped"
	KindOrderDelivered Kind = "order_delivered"
)

// OrderInfo is the view model shared by all order templates.
type OrderInfo struct {
	StoreName       string
	StoreURL        string
	OrderNumber     string
	OrderDate       string
	CustomerName    string
	CustomerEmail   string
	PaymentMethod   string
	ShippingAddress []string
	Items           []OrderItem
	Total           string
}

type OrderItem struct {
	Name      string
	Quantity  int
	LineTotal string
}

// NewOrderInfo builds the template data for order. Amounts are formatted in
// rupees.
func NewOrderInfo(order *models.Order, storeName, storeURL string) *OrderInfo {
	info := &OrderInfo{
		StoreName:     storeName,
		StoreURL:      storeURL,
		OrderNumber:   order.OrderNumber,
		OrderDate:     order.CreatedAt.Format("January 2, 2006"),
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		Total:         "₹" + money.Format(order.TotalPaise),
	}
	switch order.PaymentMethod {
	case models.PaymentMethodCOD:
		info.PaymentMethod = "Cash on delivery"
	default:
		info.PaymentMethod = "Paid online"
	}

	addr := order.ShippingAddress
	for _, line := range []string{addr.Line1, addr.Line2, strings.TrimSpace(addr.City + ", " + addr.State + " " + addr.Pincode)} {
		if line = strings.Trim(line, ", "); line != "" {
			info.ShippingAddress = append(info.ShippingAddress, line)
		}
	}

	for _, item := range order.Items {
		info.Items = append(info.Items, OrderItem{
			Name:      item.ProductName,
			Quantity:  item.Qty,
			LineTotal: "₹" + money.Format(item.LineTotalPaise),
		})
	}
	return info
}

type message struct {
	subject string
	text    *texttemplate.Template
	html    *htmltemplate.Template
}

// Renderer holds the parsed order templates. It is safe for concurrent use.
type Renderer struct {
	messages map[Kind]message
}

func NewRenderer() (*Renderer, error) {
	sources := map[Kind]struct{ subject, text, html string }{
		KindOrderPlaced:    {"Order {{.OrderNumber}} placed at {{.StoreName}}", orderPlacedText, orderPlacedHTML},
		KindOrderShipped:   {"Order {{.OrderNumber}} has shipped", orderShippedText, orderShippedHTML},
		KindOrderDelivered: {"Order {{.OrderNumber}} was delivered", orderDeliveredText, orderDeliveredHTML},
	}

	r := &Renderer{messages: make(map[Kind]message, len(sources))}
	for kind, src := range sources {
		text, err := texttemplate.New(string(kind)).Parse(src.text)
		if err != nil {
			return nil, fmt.Errorf("failed to parse text template %s: %w", kind, err)
		}
		html, err := htmltemplate.New(string(kind)).Parse(src.html)
		if err != nil {
			return nil, fmt.Errorf("failed to parse HTML template %s: %w", kind, err)
		}
		r.messages[kind] = message{subject: src.subject, text: text, html: html}
	}
	return r, nil
}

func (r *Renderer) Render(kind Kind, info *OrderInfo) (*Email, error) {
	msg, ok := r.messages[kind]
	if !ok {
		return nil, fmt.Errorf("unknown email template %q", kind)
	}

	subject, err := texttemplate.New("subject").Parse(msg.subject)
	if err != nil {
		return nil, fmt.Errorf("failed to parse subject for %s: %w", kind, err)
	}

	var subjectBuf, textBuf, htmlBuf bytes.Buffer
	if err := subject.Execute(&subjectBuf, info); err != nil {
		return nil, fmt.Errorf("failed to render subject: %w", err)
	}
	if err := msg.text.Execute(&textBuf, info); err != nil {
		return nil, fmt.Errorf("failed to render text template: %w", err)
	}
	if err := msg.html.Execute(&htmlBuf, info); err != nil {
		return nil, fmt.Errorf("failed to render HTML template: %w", err)
	}

	return &Email{
		To:      info.CustomerEmail,
		Subject: subjectBuf.String(),
		Text:    textBuf.String(),
		HTML:    htmlBuf.String(),
		Tags:    map[string]string{"kind": string(kind), "order": tagValue(info.OrderNumber)},
	}, nil
}

const orderPlacedText = `Hi {{.CustomerName}},

Thank you for your order at {{.StoreName}}!

Order Number: {{.OrderNumber}}
Order Date: {{.OrderDate}}
Payment: {{.PaymentMethod}}

Items:
{{range .Items}}- {{.Name}} x{{.Quantity}}: {{.LineTotal}}
{{end}}
Total: {{.Total}}

Shipping to:
{{range .ShippingAddress}}{{.}}
{{end}}
We'll email you again when your order ships.
{{if .StoreURL}}
{{.StoreURL}}{{end}}
`

const orderPlacedHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>Order placed</title>
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #1f2937; max-width: 600px; margin: 0 auto; padding: 20px; }
    .header { background: #ea580c; color: white; padding: 20px; text-align: center; border-radius: 8px 8px 0 0; }
    .content { background: #fffbf5; padding: 20px; border: 1px solid #fde7d3; }
    .items { width: 100%; border-collapse: collapse; margin: 15px 0; }
    .items th { text-align: left; padding: 8px; background: #fff1e6; }
    .items td { padding: 8px; border-bottom: 1px solid #fde7d3; }
    .total { font-size: 18px; font-weight: bold; text-align: right; }
    .footer { text-align: center; padding: 20px; color: #6b7280; font-size: 14px; }
  </style>
</head>
<body>
  <div class="header">
    <h1>Thank you, {{.CustomerName}}!</h1>
    <p>Your order at {{.StoreName}} has been placed.</p>
  </div>
  <div class="content">
    <p><strong>Order Number:</strong> {{.OrderNumber}}<br>
       <strong>Order Date:</strong> {{.OrderDate}}<br>
       <strong>Payment:</strong> {{.PaymentMethod}}</p>
    <table class="items">
      <thead><tr><th>Item</th><th>Qty</th><th>Amount</th></tr></thead>
      <tbody>
        {{range .Items}}<tr><td>{{.Name}}</td><td>{{.Quantity}}</td><td>{{.LineTotal}}</td></tr>
        {{end}}
      </tbody>
    </table>
    <p class="total">Total: {{.Total}}</p>
    <h3>Shipping to</h3>
    <p>{{range .ShippingAddress}}{{.}}<br>{{end}}</p>
  </div>
  <div class="footer">
    <p>{{if .StoreURL}}<a href="{{.StoreURL}}">{{.StoreName}}</a>{{else}}{{.StoreName}}{{end}}</p>
  </div>
</body>
</html>
`

const orderShippedText = `Hi {{.CustomerName}},

Your order {{.OrderNumber}} from {{.StoreName}} is on its way.

Shipping to:
{{range .ShippingAddress}}{{.}}
{{end}}
`

const orderShippedHTML = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Order shipped</title></head>
<body style="font-family: sans-serif; color: #1f2937; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h1>Your order is on its way</h1>
  <p>Hi {{.CustomerName}}, order <strong>{{.OrderNumber}}</strong> from {{.StoreName}} has shipped.</p>
  <p>{{range .ShippingAddress}}{{.}}<br>{{end}}</p>
</body>
</html>
`

const orderDeliveredText = `Hi {{.CustomerName}},

Your order {{.OrderNumber}} from {{.StoreName}} has been delivered. We hope you enjoy it!
`

const orderDeliveredHTML = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Order delivered</title></head>
<body style="font-family: sans-serif; color: #1f2937; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h1>Delivered!</h1>
  <p>Hi {{.CustomerName}}, order <strong>{{.OrderNumber}}</strong> from {{.StoreName}} has been delivered. We hope you enjoy it!</p>
</body>
</html>
`

// tagValue keeps the characters provider tags accept.
func tagValue(v string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, v)
}
