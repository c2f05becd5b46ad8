// Large FEC File Generator
//
// This tool generates a large strict ledger (FEC) file for performance
// testing and profiling of the import and letterage pipelines. Entries are
// balanced; invoices and their payments share references so that
// letterage finds matches.
//
// Usage:
//
//	go run main.go > 123456789FEC20241231.txt
//	go run main.go 20000000 > large.txt  # Specify target size in bytes
package main

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/robinvdvleuten/lettrage/formatter"
	"github.com/robinvdvleuten/lettrage/ledger"
)

const (
	defaultTargetSize = 10 * 1024 * 1024 // 10MB
)

type party struct {
	account string
	name    string
}

var (
	customers = []party{
		{"C0001", "Boulangerie Martin"}, {"C0002", "Garage Dupont"},
		{"C0003", "Café de la Gare"}, {"C0004", "Pharmacie Lefèvre"},
		{"C0005", "Hôtel du Centre"}, {"C0006", "Librairie Moreau"},
	}

	suppliers = []party{
		{"F0001", "EDF"}, {"F0002", "Orange"}, {"F0003", "Métro Cash & Carry"},
		{"F0004", "Bureau Vallée"}, {"F0005", "Transports Girard"},
	}

	revenues = []party{
		{"706000", "Prestations de services"}, {"707000", "Ventes de marchandises"},
	}

	expenses = []party{
		{"601000", "Achats stockés"}, {"606100", "Fournitures non stockables"},
		{"606400", "Fournitures administratives"}, {"613200", "Locations immobilières"},
		{"626000", "Frais postaux et télécommunications"}, {"624100", "Transports sur achats"},
	}

	vatRates = []decimal.Decimal{
		decimal.RequireFromString("0.20"),
		decimal.RequireFromString("0.10"),
		decimal.RequireFromString("0.055"),
	}
)

type invoice struct {
	party     party
	reference string
	amount    decimal.Decimal
	date      time.Time
}

type generator struct {
	f        *formatter.Formatter
	out      *bufio.Writer
	entries  map[string]int
	sales    []invoice
	purchase []invoice
	written  int
}

func main() {
	targetSize := defaultTargetSize
	if len(os.Args) > 1 {
		if size, err := strconv.Atoi(os.Args[1]); err == nil {
			targetSize = size
		}
	}

	g := &generator{
		f:       formatter.New(formatter.WithoutHeader()),
		out:     bufio.NewWriter(os.Stdout),
		entries: make(map[string]int),
	}
	defer g.out.Flush()

	// Header only.
	if err := formatter.New().Format(g.out, nil); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	currentDate := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	entryCount := 0

	for g.written < targetSize {
		switch rand.Intn(10) {
		case 0, 1, 2, 3: // 40% - Sale invoice
			g.sale(currentDate)
		case 4, 5: // 20% - Purchase invoice
			g.purchaseInvoice(currentDate)
		case 6, 7: // 20% - Customer payment
			if !g.customerPayment(currentDate) {
				g.sale(currentDate)
			}
		case 8: // 10% - Supplier payment
			if !g.supplierPayment(currentDate) {
				g.purchaseInvoice(currentDate)
			}
		case 9: // 10% - Bank fees
			g.bankFees(currentDate)
		}
		entryCount++

		// Advance the date every few entries
		if rand.Intn(4) == 0 {
			currentDate = currentDate.AddDate(0, 0, 1)
		}
	}

	fmt.Fprintf(os.Stderr, "\nGenerated %d bytes with %d entries\n", g.written, entryCount)
}

func (g *generator) nextNumber(journal string) string {
	g.entries[journal]++
	return fmt.Sprintf("%s%06d", journal, g.entries[journal])
}

func (g *generator) emit(lines ...*ledger.Line) {
	var buf strings.Builder
	for _, l := range lines {
		g.f.FormatLine(l, &buf)
	}
	n, _ := g.out.WriteString(buf.String())
	g.written += n
}

func line(journal, journalName, number string, date time.Time, account, accountName, label, reference string) *ledger.Line {
	return &ledger.Line{
		JournalCode:   journal,
		JournalName:   journalName,
		EntryNumber:   number,
		Date:          date,
		AccountNumber: account,
		AccountName:   accountName,
		Reference:     reference,
		PieceDate:     date,
		Label:         label,
		ValidDate:     date,
	}
}

func (g *generator) sale(date time.Time) {
	customer := customers[rand.Intn(len(customers))]
	revenue := revenues[rand.Intn(len(revenues))]
	rate := vatRates[rand.Intn(len(vatRates))]
	net := randAmount(50, 5000)
	vat := net.Mul(rate).Round(2)
	total := net.Add(vat)

	number := g.nextNumber("VT")
	reference := fmt.Sprintf("F%d-%05d", date.Year(), g.entries["VT"])
	label := fmt.Sprintf("Facture %s %s", reference, customer.name)

	receivable := line("VT", "Ventes", number, date, "411000", "Clients", label, reference)
	receivable.AuxiliaryAccount, receivable.AuxiliaryName = customer.account, customer.name
	receivable.Debit = total

	sales := line("VT", "Ventes", number, date, revenue.account, revenue.name, label, reference)
	sales.Credit = net

	tax := line("VT", "Ventes", number, date, "445710", "TVA collectée", label, reference)
	tax.Credit = vat

	g.emit(receivable, sales, tax)
	g.sales = append(g.sales, invoice{party: customer, reference: reference, amount: total, date: date})
}

func (g *generator) purchaseInvoice(date time.Time) {
	supplier := suppliers[rand.Intn(len(suppliers))]
	expense := expenses[rand.Intn(len(expenses))]
	net := randAmount(20, 3000)
	vat := net.Mul(vatRates[0]).Round(2)
	total := net.Add(vat)

	number := g.nextNumber("HA")
	reference := fmt.Sprintf("%s-%d", strings.ToUpper(supplier.account), rand.Intn(900000)+100000)
	label := fmt.Sprintf("Facture %s", supplier.name)

	cost := line("HA", "Achats", number, date, expense.account, expense.name, label, reference)
	cost.Debit = net

	tax := line("HA", "Achats", number, date, "445660", "TVA déductible", label, reference)
	tax.Debit = vat

	payable := line("HA", "Achats", number, date, "401000", "Fournisseurs", label, reference)
	payable.AuxiliaryAccount, payable.AuxiliaryName = supplier.account, supplier.name
	payable.Credit = total

	g.emit(cost, tax, payable)
	g.purchase = append(g.purchase, invoice{party: supplier, reference: reference, amount: total, date: date})
}

// take removes a random open invoice, favouring older ones.
func take(open *[]invoice) (invoice, bool) {
	if len(*open) == 0 {
		return invoice{}, false
	}
	i := rand.Intn(min(len(*open), 20))
	inv := (*open)[i]
	*open = append((*open)[:i], (*open)[i+1:]...)
	return inv, true
}

func (g *generator) customerPayment(date time.Time) bool {
	inv, ok := take(&g.sales)
	if !ok {
		return false
	}
	number := g.nextNumber("BQ")
	label := fmt.Sprintf("Règlement %s %s", inv.reference, inv.party.name)

	bank := line("BQ", "Banque", number, date, "512000", "Banque", label, inv.reference)
	bank.Debit = inv.amount

	receivable := line("BQ", "Banque", number, date, "411000", "Clients", label, inv.reference)
	receivable.AuxiliaryAccount, receivable.AuxiliaryName = inv.party.account, inv.party.name
	receivable.Credit = inv.amount

	g.emit(bank, receivable)
	return true
}

func (g *generator) supplierPayment(date time.Time) bool {
	inv, ok := take(&g.purchase)
	if !ok {
		return false
	}
	number := g.nextNumber("BQ")
	label := fmt.Sprintf("Paiement %s", inv.party.name)

	payable := line("BQ", "Banque", number, date, "401000", "Fournisseurs", label, inv.reference)
	payable.AuxiliaryAccount, payable.AuxiliaryName = inv.party.account, inv.party.name
	payable.Debit = inv.amount

	bank := line("BQ", "Banque", number, date, "512000", "Banque", label, inv.reference)
	bank.Credit = inv.amount

	g.emit(payable, bank)
	return true
}

func (g *generator) bankFees(date time.Time) {
	amount := randAmount(1, 40)
	number := g.nextNumber("BQ")

	fees := line("BQ", "Banque", number, date, "627000", "Services bancaires", "Frais bancaires", "")
	fees.Debit = amount

	bank := line("BQ", "Banque", number, date, "512000", "Banque", "Frais bancaires", "")
	bank.Credit = amount

	g.emit(fees, bank)
}

// randAmount returns an amount in euros with cents between min and max.
func randAmount(min, max int) decimal.Decimal {
	cents := int64(min*100 + rand.Intn((max-min)*100))
	return decimal.New(cents, -2)
}
