package tools

import (
	"context"
	"fmt"

	"github.com/optimnow-labs/finops-assistant/internal/domain"
)

// CURAPI is the Athena surface the CUR query tool calls.
type CURAPI interface {
	Query(ctx context.Context, sql string) ([]map[string]any, error)
	Table() string
}

type curQueryParams struct {
	SQL string `json:"sql" jsonschema:"description=Read-only SQL SELECT statement. Use ${table} to refer to the CUR table."`
}

// CURTools builds the Cost and Usage Report query tool over Athena. The
// querier enforces read-only SQL; this tool only shapes the interface the
// model sees.
func CURTools(api CURAPI) []Tool {
	description := fmt.Sprintf(
		"Run a read-only SQL query against the Cost and Usage Report line items in Athena. Write ${table} where the table name goes (currently %s). Only SELECT statements are allowed.",
		api.Table(),
	)
	return []Tool{
		{
			Name:        "query_cur",
			Description: description,
			InputSchema: SchemaFor(&curQueryParams{}),
			Origin:      domain.OriginLocal,
			Invoke: func(ctx context.Context, args map[string]any) (Result, error) {
				var p curQueryParams
				if err := DecodeArgs(args, &p); err != nil {
					return Errorf("invalid arguments: %v", err), nil
				}
				rows, err := api.Query(ctx, p.SQL)
				if err != nil {
					return Errorf("CUR query failed: %v", err), nil
				}
				return JSONResult(map[string]any{
					"row_count": len(rows),
					"rows":      rows,
				})
			},
		},
	}
}
