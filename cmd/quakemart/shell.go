package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	prompt "github.com/c-bata/go-prompt"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"

	"github.com/seismolab/quakemart/internal/catalog"
	"github.com/seismolab/quakemart/internal/queries"
	"github.com/seismolab/quakemart/internal/warehouse"
)

// Rendering more rows than this hides the prompt under scrollback, so
// larger results are truncated with a notice.
const maxRenderRows = 500

type shell struct {
	ctx    context.Context
	store  *warehouse.Store
	runner *queries.Runner
	canned map[string]queries.Canned
	done   bool
}

func cmdShell(ctx context.Context, store *warehouse.Store) error {
	sh := &shell{
		ctx:    ctx,
		store:  store,
		runner: queries.NewRunner(store.DB()),
		canned: make(map[string]queries.Canned),
	}
	for _, q := range queries.CannedQueries() {
		sh.canned[q.Name] = q
	}

	fmt.Printf("quakemart %s query shell. Type \\help for commands, \\q to quit.\n", Version)

	p := prompt.New(
		sh.execute,
		sh.complete,
		prompt.OptionPrefix("quakemart> "),
		prompt.OptionTitle("quakemart"),
		prompt.OptionSetExitCheckerOnInput(func(in string, breakline bool) bool {
			return sh.done
		}),
	)
	p.Run()
	return nil
}

func (s *shell) execute(input string) {
	input = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(input), ";"))
	if input == "" {
		return
	}

	if strings.HasPrefix(input, "\\") {
		s.command(input)
		return
	}

	if q, ok := s.canned[input]; ok {
		res, err := q.Run(s.ctx, s.runner)
		s.render(res, err)
		return
	}

	res, err := s.runner.Run(s.ctx, input)
	s.render(res, err)
}

func (s *shell) command(input string) {
	fields := strings.Fields(input)
	switch fields[0] {
	case "\\q", "\\quit", "\\exit":
		s.done = true
	case "\\help", "\\h", "\\?":
		s.printHelp()
	case "\\tables", "\\dt":
		names, err := s.store.TableNames(s.ctx)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return
		}
		rows := make([][]string, 0, len(names))
		for _, name := range names {
			n, err := s.store.RowCount(s.ctx, name)
			count := "?"
			if err == nil {
				count = fmt.Sprint(n)
			}
			rows = append(rows, []string{name, count})
		}
		s.render(&queries.Result{Columns: []string{"table", "rows"}, Rows: rows}, nil)
	case "\\queries":
		var rows [][]string
		for _, q := range queries.CannedQueries() {
			rows = append(rows, []string{q.Name, q.Description})
		}
		s.render(&queries.Result{Columns: []string{"query", "description"}, Rows: rows}, nil)
	default:
		fmt.Printf("unknown command %s, try \\help\n", fields[0])
	}
}

func (s *shell) printHelp() {
	fmt.Println(`Commands:
  \tables        list warehouse tables with row counts
  \queries       list built-in analytical queries
  \help          this help
  \q             quit

Type a built-in query name (e.g. "top", "regions", "moon") to run it,
or any SQL statement to run it directly.`)
}

func (s *shell) render(res *queries.Result, err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return
	}
	if res == nil || len(res.Rows) == 0 {
		fmt.Println("(no rows)")
		return
	}

	rows := res.Rows
	truncated := 0
	if len(rows) > maxRenderRows {
		truncated = len(rows) - maxRenderRows
		rows = rows[:maxRenderRows]
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(res.Columns)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetColWidth(columnWidth(len(res.Columns)))
	table.AppendBulk(rows)
	table.Render()

	if truncated > 0 {
		fmt.Printf("(%d more rows not shown)\n", truncated)
	}
	fmt.Printf("%d row(s)\n", len(res.Rows))
}

// columnWidth spreads the terminal width across columns, falling back
// to tablewriter's default when stdout is not a terminal.
func columnWidth(columns int) int {
	if columns < 1 {
		columns = 1
	}
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return tablewriter.MAX_ROW_WIDTH
	}
	// Borders and padding eat roughly three cells per column.
	w := width/columns - 3
	if w < 8 {
		w = 8
	}
	return w
}

func (s *shell) complete(d prompt.Document) []prompt.Suggest {
	word := d.GetWordBeforeCursor()
	if word == "" {
		return nil
	}

	suggestions := []prompt.Suggest{
		{Text: "\\tables", Description: "list warehouse tables"},
		{Text: "\\queries", Description: "list built-in queries"},
		{Text: "\\help", Description: "show help"},
		{Text: "\\q", Description: "quit"},
		{Text: "SELECT", Description: "SQL"},
		{Text: "FROM", Description: "SQL"},
		{Text: "WHERE", Description: "SQL"},
		{Text: "GROUP BY", Description: "SQL"},
		{Text: "ORDER BY", Description: "SQL"},
		{Text: "LIMIT", Description: "SQL"},
	}
	for _, q := range queries.CannedQueries() {
		suggestions = append(suggestions, prompt.Suggest{
			Text: q.Name, Description: q.Description,
		})
	}
	for _, t := range catalog.All() {
		suggestions = append(suggestions, prompt.Suggest{
			Text: t.Name(), Description: "table",
		})
	}
	return prompt.FilterHasPrefix(suggestions, word, true)
}
