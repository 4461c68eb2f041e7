package ledger

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const hostingNoteMarker = "Holo Hosting Invoice for"

// ErrNotHostingNote is returned for notes that are not service-logger hosting invoices.
var ErrNotHostingNote = errors.New("not a hosting invoice note")

// InvoiceNote is the structured half of a hosting invoice note.
type InvoiceNote struct {
	HHAID              string    `yaml:"hha_id" json:"hhaId"`
	InvoicePeriodStart Timestamp `yaml:"invoice_period_start" json:"invoicePeriodStart"`
	InvoicePeriodEnd   Timestamp `yaml:"invoice_period_end" json:"invoicePeriodEnd"`
	Quantity           string    `yaml:"quantity" json:"-"`
	Prices             string    `yaml:"prices" json:"-"`
}

// InvoiceUsage is the YAML-encoded quantity block of an invoice note.
type InvoiceUsage struct {
	Bandwidth uint64 `yaml:"bandwidth"`
	Storage   uint64 `yaml:"storage"`
	CPU       uint64 `yaml:"cpu"`
}

// InvoicePrices is the YAML-encoded prices block of an invoice note.
type InvoicePrices struct {
	Bandwidth string `yaml:"bandwidth"`
	Storage   string `yaml:"storage"`
	CPU       string `yaml:"cpu"`
}

// Note is a parsed hosting invoice note: a YAML sequence of a human readable
// line followed by the invoice mapping.
type Note struct {
	Text    string
	Invoice InvoiceNote
}

// ParseNote decodes a hosting invoice note.
func ParseNote(raw string) (Note, error) {
	var parts []yaml.Node
	if err := yaml.Unmarshal([]byte(raw), &parts); err != nil {
		return Note{}, fmt.Errorf("failed to parse invoice note: %w", err)
	}
	if len(parts) != 2 {
		return Note{}, fmt.Errorf("failed to parse invoice note: expected 2 elements, got %d", len(parts))
	}

	var note Note
	if err := parts[0].Decode(&note.Text); err != nil {
		return Note{}, fmt.Errorf("failed to parse invoice note text: %w", err)
	}
	if !strings.Contains(note.Text, hostingNoteMarker) {
		return Note{}, ErrNotHostingNote
	}
	if err := parts[1].Decode(&note.Invoice); err != nil {
		return Note{}, fmt.Errorf("failed to parse invoice note body: %w", err)
	}
	if note.Invoice.HHAID == "" {
		return Note{}, fmt.Errorf("failed to parse invoice note body: missing hha_id")
	}
	return note, nil
}

// HappName extracts the hosted happ name from the human readable line,
// e.g. `Holo Hosting Invoice for "Elemental Chat" (...)` yields "Elemental Chat".
func (n Note) HappName() string {
	_, rest, found := strings.Cut(n.Text, hostingNoteMarker+" ")
	if !found {
		return ""
	}
	name, _, _ := strings.Cut(rest, "(...")
	return strings.TrimSpace(strings.ReplaceAll(name, `"`, ""))
}

// Items decodes the nested quantity and prices blocks.
func (n Note) Items() (InvoiceUsage, InvoicePrices, error) {
	var usage InvoiceUsage
	if err := yaml.Unmarshal([]byte(n.Invoice.Quantity), &usage); err != nil {
		return InvoiceUsage{}, InvoicePrices{}, fmt.Errorf("failed to parse invoiced quantity: %w", err)
	}
	var prices InvoicePrices
	if err := yaml.Unmarshal([]byte(n.Invoice.Prices), &prices); err != nil {
		return InvoiceUsage{}, InvoicePrices{}, fmt.Errorf("failed to parse invoiced prices: %w", err)
	}
	return usage, prices, nil
}
