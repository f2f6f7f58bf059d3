package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	"github.com/warp/tax-engine/store/sqlite"
	"github.com/warp/tax-engine/tax"
	"github.com/warp/tax-engine/telecom"
)

func commands(out io.Writer) []subcommands.Command {
	return []subcommands.Command{
		&calcCmd{out: out},
		&resolveCmd{out: out},
		&ratesCmd{out: out},
		&listCmd{out: out},
		&showCmd{out: out},
		&applyCmd{out: out},
		&voidCmd{out: out},
		&verifyCmd{out: out},
		&addressesCmd{out: out},
		&resetCmd{out: out},
	}
}

func fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(os.Stderr, err)
	return subcommands.ExitFailure
}

func printJSON(w io.Writer, v any) subcommands.ExitStatus {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fail(err)
	}
	return subcommands.ExitSuccess
}

// oneID returns the single positional calculation ID.
func oneID(f *flag.FlagSet) (tax.CalculationID, error) {
	if f.NArg() != 1 {
		return "", fmt.Errorf("expected exactly one calculation id")
	}
	return tax.CalculationID(f.Arg(0)), nil
}

// =============================================================================
// calc
// =============================================================================

type calcCmd struct {
	out  io.Writer
	env  env
	addr addressFlags

	line     string
	customer string
	amount   string
	category string
	service  string
	lines    int
	minutes  string
	date     string
	currency string
}

func (*calcCmd) Name() string     { return "calc" }
func (*calcCmd) Synopsis() string { return "calculate and record tax for one line" }
func (*calcCmd) Usage() string {
	return `taxctl calc -amount <amount> -category <category> [-address <name> | -state .. -city .. -zip ..]

  Calculates tax for one service line and records the result. The
  breakdown lists every applied rate in execution order.
`
}

func (c *calcCmd) SetFlags(f *flag.FlagSet) {
	c.env.setFlags(f)
	c.addr.setFlags(f)
	f.StringVar(&c.line, "line", "cli-line-1", "invoice line id")
	f.StringVar(&c.customer, "customer", "", "customer id (enables exemptions)")
	f.StringVar(&c.amount, "amount", "", "line amount, e.g. 100.00")
	f.StringVar(&c.category, "category", string(telecom.CategoryLocalVoice), "tax category ("+categoryNames()+")")
	f.StringVar(&c.service, "service", "", "service type (voip, wireless, landline, broadband)")
	f.IntVar(&c.lines, "lines", 0, "access lines, for per-line fees")
	f.StringVar(&c.minutes, "minutes", "", "billed minutes, for per-minute fees")
	f.StringVar(&c.date, "date", "", "tax date YYYY-MM-DD (default today)")
	f.StringVar(&c.currency, "currency", "", "ISO currency (default USD)")
}

func (c *calcCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	line, err := c.serviceLine()
	if err != nil {
		return fail(err)
	}

	engine, closeFn, err := c.env.open(ctx)
	if err != nil {
		return fail(err)
	}
	defer closeFn()

	rec, err := engine.Calculate(ctx, line.ToCalculateRequest())
	if err != nil {
		return fail(err)
	}
	if c.env.asJSON {
		return printJSON(c.out, rec)
	}
	renderRecord(c.out, rec)
	return subcommands.ExitSuccess
}

func (c *calcCmd) serviceLine() (telecom.ServiceLine, error) {
	amount, err := decimal.NewFromString(c.amount)
	if err != nil {
		return telecom.ServiceLine{}, fmt.Errorf("invalid -amount %q", c.amount)
	}
	addr, err := c.addr.address()
	if err != nil {
		return telecom.ServiceLine{}, err
	}
	asOf, err := parseAsOf(c.date)
	if err != nil {
		return telecom.ServiceLine{}, err
	}
	line := telecom.ServiceLine{
		Calculable:    tax.CalculableRef{Kind: tax.CalculableInvoiceLine, ID: c.line},
		Customer:      tax.CustomerID(c.customer),
		Category:      tax.CategoryID(c.category),
		ServiceType:   telecom.ServiceType(c.service),
		MonthlyCharge: amount,
		AccessLines:   c.lines,
		Address:       addr,
		AsOf:          asOf,
		Currency:      c.currency,
	}
	if c.minutes != "" {
		if line.Minutes, err = decimal.NewFromString(c.minutes); err != nil {
			return telecom.ServiceLine{}, fmt.Errorf("invalid -minutes %q", c.minutes)
		}
	}
	return line, nil
}

// =============================================================================
// resolve / rates
// =============================================================================

type resolveCmd struct {
	out  io.Writer
	env  env
	addr addressFlags
	date string
}

func (*resolveCmd) Name() string     { return "resolve" }
func (*resolveCmd) Synopsis() string { return "list the jurisdictions covering an address" }
func (*resolveCmd) Usage() string {
	return `taxctl resolve [-address <name> | -state .. -city .. -zip ..] [-date YYYY-MM-DD]
`
}

func (c *resolveCmd) SetFlags(f *flag.FlagSet) {
	c.env.setFlags(f)
	c.addr.setFlags(f)
	f.StringVar(&c.date, "date", "", "date YYYY-MM-DD (default today)")
}

func (c *resolveCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	addr, err := c.addr.address()
	if err != nil {
		return fail(err)
	}
	asOf, err := parseAsOf(c.date)
	if err != nil {
		return fail(err)
	}
	engine, closeFn, err := c.env.open(ctx)
	if err != nil {
		return fail(err)
	}
	defer closeFn()

	js, err := engine.ResolveJurisdictions(ctx, addr, asOf)
	if err != nil {
		return fail(err)
	}
	if c.env.asJSON {
		return printJSON(c.out, js)
	}
	renderJurisdictions(c.out, js)
	return subcommands.ExitSuccess
}

type ratesCmd struct {
	out      io.Writer
	env      env
	addr     addressFlags
	category string
	service  string
	date     string
}

func (*ratesCmd) Name() string     { return "rates" }
func (*ratesCmd) Synopsis() string { return "list the rates considered for an address and category" }
func (*ratesCmd) Usage() string {
	return `taxctl rates -category <category> [-service <type>] [-address <name> | ...] [-date YYYY-MM-DD]

  Overlapping rates are all listed; calc shows which one wins.
`
}

func (c *ratesCmd) SetFlags(f *flag.FlagSet) {
	c.env.setFlags(f)
	c.addr.setFlags(f)
	f.StringVar(&c.category, "category", string(telecom.CategoryLocalVoice), "tax category")
	f.StringVar(&c.service, "service", "", "service type")
	f.StringVar(&c.date, "date", "", "date YYYY-MM-DD (default today)")
}

func (c *ratesCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	addr, err := c.addr.address()
	if err != nil {
		return fail(err)
	}
	asOf, err := parseAsOf(c.date)
	if err != nil {
		return fail(err)
	}
	engine, closeFn, err := c.env.open(ctx)
	if err != nil {
		return fail(err)
	}
	defer closeFn()

	rates, err := engine.SelectRates(ctx, addr, tax.SelectionCriteria{
		Category:    tax.CategoryID(c.category),
		ServiceType: c.service,
		AsOf:        asOf,
	})
	if err != nil {
		return fail(err)
	}
	if c.env.asJSON {
		return printJSON(c.out, rates)
	}
	renderRates(c.out, rates)
	return subcommands.ExitSuccess
}

// =============================================================================
// list / show
// =============================================================================

type listCmd struct {
	out    io.Writer
	env    env
	status string
	limit  int
}

func (*listCmd) Name() string     { return "list" }
func (*listCmd) Synopsis() string { return "list recorded calculations" }
func (*listCmd) Usage() string {
	return `taxctl list [-status <status>] [-limit N]
`
}

func (c *listCmd) SetFlags(f *flag.FlagSet) {
	c.env.setFlags(f)
	f.StringVar(&c.status, "status", "", "only records in this status")
	f.IntVar(&c.limit, "limit", 50, "maximum records")
}

func (c *listCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	engine, closeFn, err := c.env.open(ctx)
	if err != nil {
		return fail(err)
	}
	defer closeFn()

	filter := tax.RecordFilter{Limit: c.limit}
	if c.status != "" {
		s := tax.Status(c.status)
		filter.Status = &s
	}
	recs, err := engine.ListCalculations(ctx, filter)
	if err != nil {
		return fail(err)
	}
	if c.env.asJSON {
		return printJSON(c.out, recs)
	}
	renderList(c.out, recs)
	return subcommands.ExitSuccess
}

type showCmd struct {
	out io.Writer
	env env
}

func (*showCmd) Name() string     { return "show" }
func (*showCmd) Synopsis() string { return "show one recorded calculation" }
func (*showCmd) Usage() string {
	return `taxctl show <calculation-id>
`
}

func (c *showCmd) SetFlags(f *flag.FlagSet) { c.env.setFlags(f) }

func (c *showCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withRecord(ctx, f, &c.env, c.out, func(e *tax.Engine, id tax.CalculationID) (*tax.CalculationRecord, error) {
		return e.GetCalculation(ctx, id)
	})
}

// withRecord opens the engine, runs fn on the positional ID and prints the
// resulting record.
func withRecord(ctx context.Context, f *flag.FlagSet, e *env, out io.Writer, fn func(*tax.Engine, tax.CalculationID) (*tax.CalculationRecord, error)) subcommands.ExitStatus {
	id, err := oneID(f)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	engine, closeFn, err := e.open(ctx)
	if err != nil {
		return fail(err)
	}
	defer closeFn()

	rec, err := fn(engine, id)
	if err != nil {
		return fail(err)
	}
	if e.asJSON {
		return printJSON(out, rec)
	}
	renderRecord(out, rec)
	return subcommands.ExitSuccess
}

// =============================================================================
// apply / void / verify
// =============================================================================

type applyCmd struct {
	out     io.Writer
	env     env
	invoice string
	quote   string
}

func (*applyCmd) Name() string     { return "apply" }
func (*applyCmd) Synopsis() string { return "bind a calculation to an invoice or quote" }
func (*applyCmd) Usage() string {
	return `taxctl apply (-invoice <id> | -quote <id>) <calculation-id>
`
}

func (c *applyCmd) SetFlags(f *flag.FlagSet) {
	c.env.setFlags(f)
	f.StringVar(&c.invoice, "invoice", "", "invoice id")
	f.StringVar(&c.quote, "quote", "", "quote id")
}

func (c *applyCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	doc := tax.DocumentRef{Kind: tax.DocumentInvoice, ID: c.invoice}
	if c.quote != "" {
		doc = tax.DocumentRef{Kind: tax.DocumentQuote, ID: c.quote}
	}
	return withRecord(ctx, f, &c.env, c.out, func(e *tax.Engine, id tax.CalculationID) (*tax.CalculationRecord, error) {
		return e.ApplyTo(ctx, id, doc)
	})
}

type voidCmd struct {
	out    io.Writer
	env    env
	reason string
}

func (*voidCmd) Name() string     { return "void" }
func (*voidCmd) Synopsis() string { return "void a calculation" }
func (*voidCmd) Usage() string {
	return `taxctl void -reason <text> <calculation-id>
`
}

func (c *voidCmd) SetFlags(f *flag.FlagSet) {
	c.env.setFlags(f)
	f.StringVar(&c.reason, "reason", "", "why the calculation is voided (required)")
}

func (c *voidCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withRecord(ctx, f, &c.env, c.out, func(e *tax.Engine, id tax.CalculationID) (*tax.CalculationRecord, error) {
		return e.Void(ctx, id, c.reason)
	})
}

type verifyCmd struct {
	out io.Writer
	env env
}

func (*verifyCmd) Name() string     { return "verify" }
func (*verifyCmd) Synopsis() string { return "re-derive a calculation from its snapshot" }
func (*verifyCmd) Usage() string {
	return `taxctl verify <calculation-id>

  Re-runs exemption filtering and execution over the stored input snapshot
  and records whether the result still matches (verified or mismatch).
`
}

func (c *verifyCmd) SetFlags(f *flag.FlagSet) { c.env.setFlags(f) }

func (c *verifyCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return withRecord(ctx, f, &c.env, c.out, func(e *tax.Engine, id tax.CalculationID) (*tax.CalculationRecord, error) {
		return e.Verify(ctx, id)
	})
}

// =============================================================================
// addresses
// =============================================================================

type addressesCmd struct {
	out io.Writer
}

func (*addressesCmd) Name() string     { return "addresses" }
func (*addressesCmd) Synopsis() string { return "list the sample addresses" }
func (*addressesCmd) Usage() string {
	return `taxctl addresses
`
}

func (*addressesCmd) SetFlags(*flag.FlagSet) {}

func (c *addressesCmd) Execute(context.Context, *flag.FlagSet, ...interface{}) subcommands.ExitStatus {
	for _, name := range telecom.SampleAddressNames() {
		a := telecom.SampleAddresses[name]
		fmt.Fprintf(c.out, "%-12s %s, %s %s %s\n", name, a.Municipality, a.State, a.PostalCode, a.Country)
	}
	return subcommands.ExitSuccess
}

// =============================================================================
// reset
// =============================================================================

type resetCmd struct {
	out io.Writer
	db  string
	yes bool
}

func (*resetCmd) Name() string     { return "reset" }
func (*resetCmd) Synopsis() string { return "delete every record and all reference data" }
func (*resetCmd) Usage() string {
	return `taxctl reset -yes [-db <path>]

  Empties the database. The next command reloads the reference data;
  calculation records are gone for good.
`
}

func (c *resetCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.db, "db", "taxctl.db", "SQLite database path")
	f.BoolVar(&c.yes, "yes", false, "confirm the reset")
}

func (c *resetCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if !c.yes {
		fmt.Fprintln(os.Stderr, "refusing to reset without -yes")
		return subcommands.ExitUsageError
	}
	db, err := sqlite.New(c.db)
	if err != nil {
		return fail(err)
	}
	defer db.Close()

	if err := db.Reset(ctx); err != nil {
		return fail(err)
	}
	fmt.Fprintf(c.out, "reset %s\n", c.db)
	return subcommands.ExitSuccess
}
