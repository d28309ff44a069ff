package main

import (
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	dsTableID      = "dsTable"
	usTableID      = "usTable"
	dsOFDMTableID  = "d31dsTable"
	usOFDMATableID = "d31usTable"
)

// tableLayout describes one channel table on DocsisStatus.asp. cells counts
// the leading channel key column.
type tableLayout struct {
	id          string
	channelType ChannelType
	direction   Direction
	cells       int
}

var statusTables = []tableLayout{
	{id: dsTableID, channelType: Bonded, direction: Downstream, cells: 10},
	{id: usTableID, channelType: Bonded, direction: Upstream, cells: 6},
	{id: dsOFDMTableID, channelType: OFDM, direction: Downstream, cells: 11},
	{id: usOFDMATableID, channelType: OFDMA, direction: Upstream, cells: 6},
}

// parseStatusPage returns the data rows of every channel table keyed by
// table id. Header rows are dropped and cells are whitespace trimmed.
func parseStatusPage(r io.Reader) (map[string][][]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	tables := make(map[string][][]string, len(statusTables))
	for _, layout := range statusTables {
		sel := doc.Find("table#" + layout.id)
		if sel.Length() == 0 {
			return nil, &ParseError{Kind: TableMissing, Table: layout.id}
		}

		rows := parseTable(sel.Nodes[0])
		if len(rows) > 0 {
			rows = rows[1:]
		}
		for i, row := range rows {
			if len(row) < layout.cells {
				return nil, &ParseError{
					Kind:  RowMalformed,
					Table: layout.id,
					Row:   i,
					Value: "expected " + strconv.Itoa(layout.cells) + " cells, got " + strconv.Itoa(len(row)),
				}
			}
		}
		tables[layout.id] = rows
	}
	return tables, nil
}

// parseTable collects the text of every th/td cell of every row directly
// under tableNode or its thead/tbody/tfoot sections.
func parseTable(tableNode *html.Node) [][]string {
	table := [][]string{}
	for section := tableNode.FirstChild; section != nil; section = section.NextSibling {
		if section.Type != html.ElementNode {
			continue
		}
		switch section.DataAtom {
		case atom.Tr:
			table = append(table, parseRow(section))
		case atom.Thead, atom.Tbody, atom.Tfoot:
			for row := section.FirstChild; row != nil; row = row.NextSibling {
				if row.Type == html.ElementNode && row.DataAtom == atom.Tr {
					table = append(table, parseRow(row))
				}
			}
		}
	}
	return table
}

func parseRow(rowNode *html.Node) []string {
	row := []string{}
	for cell := rowNode.FirstChild; cell != nil; cell = cell.NextSibling {
		if cell.Type == html.ElementNode && (cell.DataAtom == atom.Th || cell.DataAtom == atom.Td) {
			var b strings.Builder
			nodeText(cell, &b)
			row = append(row, strings.TrimSpace(b.String()))
		}
	}
	return row
}

func nodeText(n *html.Node, b *strings.Builder) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		nodeText(c, b)
	}
}

// parseUnitValue parses cells like "603000000 Hz" or "3.1 dBmV". The unit is
// optional so already stripped values parse to the same number.
func parseUnitValue(column, value, unit string) (float64, error) {
	s := strings.TrimSpace(value)
	s = strings.TrimSpace(strings.TrimSuffix(s, unit))
	if isGoLiteral(s) {
		return 0, &ParseError{Kind: NumericFormat, Column: column, Value: value}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &ParseError{Kind: NumericFormat, Column: column, Value: value, Err: err}
	}
	return f, nil
}

// isGoLiteral reports whether s uses Go literal syntax (0x floats, digit
// separators) that the modem never prints.
func isGoLiteral(s string) bool {
	if strings.Contains(s, "_") {
		return true
	}
	s = strings.TrimLeft(s, "+-")
	return strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")
}

// parseCount parses a non-negative codeword counter.
func parseCount(column, value string) (float64, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, &ParseError{Kind: NumericFormat, Column: column, Value: value, Err: err}
	}
	return float64(n), nil
}
