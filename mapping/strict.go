package mapping

import (
	"strings"
)

// StrictColumns is the fixed column layout of the legal ledger export.
var StrictColumns = []string{
	"JournalCode", "JournalLib", "EcritureNum", "EcritureDate",
	"CompteNum", "CompteLib", "CompAuxNum", "CompAuxLib",
	"PieceRef", "PieceDate", "EcritureLib", "Debit", "Credit",
	"EcritureLet", "DateLet", "ValidDate", "Montantdevise", "Idevise",
}

// strictAliases maps lowercased header spellings found in the wild to
// their field. "montant" is deliberately absent: it collides with
// Montantdevise.
var strictAliases = map[string]Field{
	"journalcode": FieldJournalCode, "codejournal": FieldJournalCode, "journal": FieldJournalCode, "jl": FieldJournalCode,
	"journallib": FieldJournalName, "libellejournal": FieldJournalName,
	"ecriturenum": FieldEntryNumber, "numecriture": FieldEntryNumber, "entrynumber": FieldEntryNumber, "transactionid": FieldEntryNumber, "docnum": FieldEntryNumber,
	"ecrituredate": FieldDate, "dateecriture": FieldDate, "transactiondate": FieldDate, "date": FieldDate,
	"comptenum": FieldAccountNumber, "numcompte": FieldAccountNumber, "accountcode": FieldAccountNumber, "account": FieldAccountNumber,
	"accnt": FieldAccountNumber, "nominalcode": FieldAccountNumber, "glcode": FieldAccountNumber, "compte": FieldAccountNumber,
	"comptelib": FieldAccountName, "accountname": FieldAccountName, "libellecompte": FieldAccountName,
	"compauxnum": FieldThirdParty, "subaccount": FieldThirdParty, "auxiliaire": FieldThirdParty,
	"compauxlib": FieldThirdPartyName,
	"pieceref":   FieldReference, "reference": FieldReference, "invoicenumber": FieldReference, "piece": FieldReference,
	"piecedate":   FieldPieceDate,
	"ecriturelib": FieldLabel, "description": FieldLabel, "memo": FieldLabel, "libelle": FieldLabel,
	"debit": FieldDebit, "dr": FieldDebit, "montantdebit": FieldDebit,
	"credit": FieldCredit, "cr": FieldCredit, "montantcredit": FieldCredit,
	"amount": FieldAmount, "value": FieldAmount,
	"montantdevise": FieldForeignAmount, "foreignamount": FieldForeignAmount,
	"idevise": FieldCurrency, "currency": FieldCurrency, "devise": FieldCurrency,
	"ecriturelet": FieldLetterage, "lettrage": FieldLetterage, "matchingcode": FieldLetterage,
	"datelet":   FieldLetterageDate,
	"validdate": FieldValidDate,
}

// canonicalHeader lowercases and strips accents, spaces and punctuation.
func canonicalHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	var b strings.Builder
	for _, r := range h {
		switch r {
		case 'é', 'è', 'ê', 'ë':
			b.WriteRune('e')
		case 'à', 'â':
			b.WriteRune('a')
		case 'ô':
			b.WriteRune('o')
		case 'î', 'ï':
			b.WriteRune('i')
		case 'û', 'ù':
			b.WriteRune('u')
		case 'ç':
			b.WriteRune('c')
		default:
			if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

// Strict maps a strict ledger header row by exact column names. When the
// header row is not recognized at all, the fixed column order is assumed.
func Strict(headers []string) *Mapping {
	m := StrictByName(headers)
	if len(m.columns) == 0 {
		return Positional(headers)
	}
	return m
}

// StrictByName maps the header cells that carry a known strict column name
// and leaves the others unmapped.
func StrictByName(headers []string) *Mapping {
	m := New(headers)
	for i, h := range headers {
		f, ok := strictAliases[canonicalHeader(h)]
		if !ok || m.Has(f) {
			continue
		}
		m.Set(f, i)
	}
	if m.Has(FieldDebit) || m.Has(FieldCredit) {
		m.Unset(FieldAmount)
	}
	return m
}

// Positional maps columns by the fixed strict layout order.
func Positional(headers []string) *Mapping {
	m := New(headers)
	order := []Field{
		FieldJournalCode, FieldJournalName, FieldEntryNumber, FieldDate,
		FieldAccountNumber, FieldAccountName, FieldThirdParty, FieldThirdPartyName,
		FieldReference, FieldPieceDate, FieldLabel, FieldDebit, FieldCredit,
		FieldLetterage, FieldLetterageDate, FieldValidDate, FieldForeignAmount, FieldCurrency,
	}
	for i, f := range order {
		if i >= len(headers) {
			break
		}
		m.Set(f, i)
	}
	return m
}

// LooksStrict reports whether a header row carries the strict layout.
func LooksStrict(headers []string) bool {
	hits := 0
	for _, h := range headers {
		switch canonicalHeader(h) {
		case "journalcode", "ecriturenum", "ecrituredate", "comptenum", "ecriturelib":
			hits++
		}
	}
	return hits >= 3
}
