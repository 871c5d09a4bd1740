// Package athena runs read-only SQL against the Cost and Usage Report table
// for the assistant's CUR query tool.
package athena

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ath "github.com/aws/aws-sdk-go-v2/service/athena"
	athtypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
)

const (
	pollInterval = 2 * time.Second
	pollTimeout  = 120 * time.Second
)

// API is the subset of the Athena client used by this package.
type API interface {
	StartQueryExecution(ctx context.Context, params *ath.StartQueryExecutionInput, optFns ...func(*ath.Options)) (*ath.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, params *ath.GetQueryExecutionInput, optFns ...func(*ath.Options)) (*ath.GetQueryExecutionOutput, error)
	GetQueryResults(ctx context.Context, params *ath.GetQueryResultsInput, optFns ...func(*ath.Options)) (*ath.GetQueryResultsOutput, error)
}

// Querier runs validated queries against the CUR table.
type Querier struct {
	api       API
	database  string
	table     string
	workgroup string
	outputLoc string
}

// New creates a Querier from an AWS config and CUR table configuration.
func New(cfg aws.Config, database, table, workgroup, outputLoc string) *Querier {
	return NewFromAPI(ath.NewFromConfig(cfg), database, table, workgroup, outputLoc)
}

// NewFromAPI creates a Querier from an explicit API implementation (for testing).
func NewFromAPI(api API, database, table, workgroup, outputLoc string) *Querier {
	return &Querier{
		api:       api,
		database:  database,
		table:     table,
		workgroup: workgroup,
		outputLoc: outputLoc,
	}
}

// Table returns the configured CUR table name.
func (q *Querier) Table() string { return q.table }

// Query validates the SQL, runs it, polls until the execution settles and
// returns data rows keyed by column name. Cost-looking columns are parsed
// to float64; everything else stays a string.
func (q *Querier) Query(ctx context.Context, sql string) ([]map[string]any, error) {
	if err := ValidateReadOnlyQuery(sql); err != nil {
		return nil, err
	}
	sql, err := ExpandTable(sql, q.table)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, pollTimeout)
	defer cancel()

	startOut, err := q.api.StartQueryExecution(ctx, &ath.StartQueryExecutionInput{
		QueryString: aws.String(sql),
		QueryExecutionContext: &athtypes.QueryExecutionContext{
			Database: aws.String(q.database),
		},
		WorkGroup: aws.String(q.workgroup),
		ResultConfiguration: &athtypes.ResultConfiguration{
			OutputLocation: aws.String(q.outputLoc),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("athena: start query: %w", err)
	}

	queryID := startOut.QueryExecutionId

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		execOut, err := q.api.GetQueryExecution(ctx, &ath.GetQueryExecutionInput{
			QueryExecutionId: queryID,
		})
		if err != nil {
			return nil, fmt.Errorf("athena: get query execution: %w", err)
		}

		state := execOut.QueryExecution.Status.State
		switch state {
		case athtypes.QueryExecutionStateSucceeded:
			// Proceed to get results.
		case athtypes.QueryExecutionStateFailed:
			reason := ""
			if execOut.QueryExecution.Status.StateChangeReason != nil {
				reason = *execOut.QueryExecution.Status.StateChangeReason
			}
			return nil, fmt.Errorf("athena: query failed: %s", reason)
		case athtypes.QueryExecutionStateCancelled:
			return nil, fmt.Errorf("athena: query was cancelled")
		default:
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("athena: query %s: %w", *queryID, ctx.Err())
			case <-ticker.C:
				continue
			}
		}

		resultsOut, err := q.api.GetQueryResults(ctx, &ath.GetQueryResultsInput{
			QueryExecutionId: queryID,
		})
		if err != nil {
			return nil, fmt.Errorf("athena: get query results: %w", err)
		}

		return transformResults(resultsOut), nil
	}
}

// transformResults converts an Athena ResultSet to []map[string]any. The
// first row is the header; remaining rows are data.
func transformResults(out *ath.GetQueryResultsOutput) []map[string]any {
	if out.ResultSet == nil || len(out.ResultSet.Rows) < 2 {
		return nil
	}

	rows := out.ResultSet.Rows
	headers := make([]string, len(rows[0].Data))
	for i, d := range rows[0].Data {
		if d.VarCharValue != nil {
			headers[i] = *d.VarCharValue
		}
	}

	items := make([]map[string]any, 0, len(rows)-1)
	for _, row := range rows[1:] {
		item := make(map[string]any)
		for i, d := range row.Data {
			if i >= len(headers) {
				break
			}
			key := headers[i]
			val := ""
			if d.VarCharValue != nil {
				val = *d.VarCharValue
			}
			if numericColumn(key) {
				if f, err := strconv.ParseFloat(val, 64); err == nil {
					item[key] = f
					continue
				}
			}
			item[key] = val
		}
		items = append(items, item)
	}
	return items
}

// numericColumn guesses whether a CUR column carries a monetary or usage
// amount worth parsing.
func numericColumn(name string) bool {
	for _, suffix := range []string{"_cost", "_amount", "_rate", "_fee", "_quantity"} {
		if len(name) >= len(suffix) && name[len(name)-len(suffix):] == suffix {
			return true
		}
	}
	return false
}
