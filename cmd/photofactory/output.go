package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/mesh-intelligence/photofactory/pkg/types"
)

// emit writes v as indented JSON in --json mode and calls text otherwise.
func (c *cli) emit(v any, text func(w io.Writer) error) error {
	if c.jsonMode {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return text(c.out)
}

// table writes aligned columns.
func table(w io.Writer, header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	writeRow(tw, header)
	for _, r := range rows {
		writeRow(tw, r)
	}
	return tw.Flush()
}

func writeRow(w io.Writer, cols []string) {
	for i, col := range cols {
		if i > 0 {
			fmt.Fprint(w, "\t")
		}
		fmt.Fprint(w, col)
	}
	fmt.Fprintln(w)
}

// parseID parses a positive row id argument.
func parseID(field, arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, types.ValidationError(field, fmt.Sprintf("%q is not a valid id.", arg))
	}
	return id, nil
}

// parseCategory accepts a category value such as before_car.
func parseCategory(arg string) (types.Category, error) {
	c := types.Category(arg)
	if !types.ValidCategory(c) {
		return "", types.ValidationError("category", fmt.Sprintf("Unknown photo category %q. Use one of %v.", arg, types.Categories))
	}
	return c, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
