package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador sobre un writer arbitrario (tests).
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Notify imprime las oportunidades aceptadas del tick.
func (c *Console) Notify(_ context.Context, opportunities []domain.ArbitrageOpportunity) error {
	now := time.Now().Format("15:04:05")
	if len(opportunities) == 0 {
		fmt.Fprintf(c.out, "[%s] no opportunities found\n", now)
		return nil
	}

	if c.table {
		fmt.Fprintf(c.out, "\n[%s] %d opportunities\n", now, len(opportunities))
		return RenderTable(c.out, opportunities)
	}

	c.printCompact(now, opportunities)
	return nil
}

// printCompact imprime una línea por oportunidad.
func (c *Console) printCompact(now string, opps []domain.ArbitrageOpportunity) {
	var sb strings.Builder
	for _, o := range opps {
		fmt.Fprintf(&sb, "[%s] %s buy %s @ %s → sell %s @ %s | net $%s (%s%%) gas $%s\n",
			now, o.Pair,
			o.BuyVenue, o.BuyPrice.StringFixed(6),
			o.SellVenue, o.SellPrice.StringFixed(6),
			o.NetProfit.StringFixed(4), o.ProfitPercentage.StringFixed(4),
			o.GasCost.StringFixed(4),
		)
	}
	fmt.Fprint(c.out, sb.String())
}

// RenderTable imprime las oportunidades en formato tabla. También lo usa el
// listado del historial (-recent).
func RenderTable(w io.Writer, opps []domain.ArbitrageOpportunity) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Time", "Pair", "Buy", "Buy price", "Sell", "Sell price", "Gross $", "Gas $", "Net $", "Net %")

	for _, o := range opps {
		id := "-"
		if o.ID > 0 {
			id = fmt.Sprintf("%d", o.ID)
		}
		if err := table.Append(
			id,
			o.Timestamp.Local().Format("01-02 15:04:05"),
			o.Pair,
			o.BuyVenue,
			o.BuyPrice.StringFixed(6),
			o.SellVenue,
			o.SellPrice.StringFixed(6),
			o.GrossProfit.StringFixed(4),
			o.GasCost.StringFixed(4),
			o.NetProfit.StringFixed(4),
			o.ProfitPercentage.StringFixed(4),
		); err != nil {
			return fmt.Errorf("notify.RenderTable: append: %w", err)
		}
	}

	if err := table.Render(); err != nil {
		return fmt.Errorf("notify.RenderTable: render: %w", err)
	}
	return nil
}
