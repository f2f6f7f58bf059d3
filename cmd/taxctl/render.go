package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"github.com/warp/tax-engine/tax"
)

func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func percent(d decimal.Decimal) string {
	return d.Shift(2).Round(4).String() + "%"
}

func renderRecord(w io.Writer, rec *tax.CalculationRecord) {
	cur := rec.Currency
	fmt.Fprintf(w, "Calculation %s (%s, %s)\n", rec.ID, rec.Status, rec.ValidationStatus)
	fmt.Fprintf(w, "Line        %s %s\n", rec.Calculable.Kind, rec.Calculable.ID)
	if rec.Document != nil {
		fmt.Fprintf(w, "Document    %s %s\n", rec.Document.Kind, rec.Document.ID)
	}
	if rec.AdjustsID != "" {
		fmt.Fprintf(w, "Adjusts     %s (%s)\n", rec.AdjustsID, rec.Reason)
	}
	if rec.SupersededBy != "" {
		fmt.Fprintf(w, "Superseded  %s\n", rec.SupersededBy)
	}
	fmt.Fprintf(w, "Date        %s\n\n", rec.Input.AsOf)

	tw := table(w)
	fmt.Fprintln(tw, "#\tJURISDICTION\tTAX\tRATE\tBASE\tAMOUNT\tNOTE")
	for _, e := range rec.Breakdown {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Sequence, e.JurisdictionName, e.TaxType, e.RateID,
			tax.FormatAmount(e.TaxableBase, cur), tax.FormatAmount(e.Contribution, cur), entryNote(e, cur))
	}
	tw.Flush()

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Line amount  %s\n", tax.FormatAmount(rec.LineAmount, cur))
	fmt.Fprintf(w, "Total tax    %s (%s)\n", tax.FormatAmount(rec.TotalTax, cur), percent(rec.EffectiveRate))
	if !rec.InclusiveTax.IsZero() {
		fmt.Fprintf(w, "Included tax %s\n", tax.FormatAmount(rec.InclusiveTax, cur))
	}
	fmt.Fprintf(w, "Final amount %s\n", tax.FormatAmount(rec.FinalAmount, cur))
	if rec.TaxDelta != nil {
		fmt.Fprintf(w, "Tax delta    %s\n", tax.FormatAmount(*rec.TaxDelta, cur))
	}

	for _, s := range rec.Metadata.RatesSkipped {
		fmt.Fprintf(w, "skipped %s: %s\n", s.RateID, s.Reason)
	}
	for _, warn := range rec.Metadata.Warnings {
		fmt.Fprintf(w, "warning %s\n", warn)
	}
}

func entryNote(e tax.BreakdownEntry, cur string) string {
	var notes []string
	if e.Inclusive {
		notes = append(notes, "included in price")
	}
	if e.Compounded {
		notes = append(notes, "compound")
	}
	if e.ThresholdNote != "" {
		notes = append(notes, strings.ReplaceAll(e.ThresholdNote, "_", " "))
	}
	if !e.AmountWaived.IsZero() {
		notes = append(notes, fmt.Sprintf("%s waived by %s", tax.FormatAmount(e.AmountWaived, cur), e.Exemption.ExemptionID))
	}
	return strings.Join(notes, "; ")
}

func renderJurisdictions(w io.Writer, js []tax.Jurisdiction) {
	tw := table(w)
	fmt.Fprintln(tw, "ID\tKIND\tNAME\tAUTHORITY")
	for _, j := range js {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", j.ID, j.Kind, j.Name, j.Authority)
	}
	tw.Flush()
}

func renderRates(w io.Writer, rates []tax.RateDefinition) {
	tw := table(w)
	fmt.Fprintln(tw, "ID\tJURISDICTION\tTAX\tCATEGORY\tSHAPE\tVALUE\tPRIORITY\tWINDOW")
	for _, r := range rates {
		category := "any"
		if r.CategoryID != "" {
			category = tax.GetOrCreateCategory(r.CategoryID).Name
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			r.ID, r.JurisdictionID, r.TaxType, category, r.Shape, rateValue(r), r.Priority, r.Window)
	}
	tw.Flush()
}

func rateValue(r tax.RateDefinition) string {
	switch {
	case r.Percentage != nil:
		return r.Percentage.String() + "%"
	case r.FixedAmount != nil:
		return r.FixedAmount.StringFixed(2)
	case len(r.Tiers) > 0:
		return fmt.Sprintf("%d tiers", len(r.Tiers))
	}
	return ""
}

func renderList(w io.Writer, recs []tax.CalculationRecord) {
	tw := table(w)
	fmt.Fprintln(tw, "ID\tLINE\tSTATUS\tDATE\tAMOUNT\tTAX")
	for _, r := range recs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Calculable.ID, r.Status, r.Input.AsOf,
			tax.FormatAmount(r.LineAmount, r.Currency), tax.FormatAmount(r.TotalTax, r.Currency))
	}
	tw.Flush()
}
