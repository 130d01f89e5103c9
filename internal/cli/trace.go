package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/roach88/feeledger/internal/ir"
	"github.com/roach88/feeledger/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Signature   string
	Instruction string // optional - filter to transactions carrying this instruction
	Failed      bool
	Limit       int
}

// TraceTransaction is one transaction of the log.
type TraceTransaction struct {
	Signature    string             `json:"signature"`
	Slot         int64              `json:"slot"`
	FeePayer     string             `json:"fee_payer"`
	Status       string             `json:"status"`
	ErrorTag     string             `json:"error_tag,omitempty"`
	ErrorMessage string             `json:"error_message,omitempty"`
	Instructions []TraceInstruction `json:"instructions"`
	Logs         []string           `json:"logs,omitempty"`
}

// TraceInstruction is one decoded instruction.
type TraceInstruction struct {
	Program  string         `json:"program"`
	Name     string         `json:"name"`
	Accounts []string       `json:"accounts"`
	Args     map[string]any `json:"args,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Transactions []TraceTransaction `json:"transactions"`
	Stats        TraceStats         `json:"stats"`
}

// TraceStats holds summary statistics for the listed transactions.
type TraceStats struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the transaction log",
		Long: `Show the transaction log of the ledger in submission order.

Every executed transaction is logged, whether it committed or rolled
back, with its decoded instructions, error tag and program logs.

Examples:
  feeledger trace
  feeledger trace --instruction payment --failed
  feeledger trace --signature 5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnb... -v
  feeledger trace --limit 10 --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Signature, "signature", "", "show a single transaction")
	cmd.Flags().StringVar(&opts.Instruction, "instruction", "", "filter to transactions with this instruction")
	cmd.Flags().BoolVar(&opts.Failed, "failed", false, "only failed transactions")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "show only the last N transactions")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := context.Background()

	l, err := opts.openLedger(ctx)
	if err != nil {
		return err
	}
	defer l.Close()

	var records []ir.TransactionRecord
	if opts.Signature != "" {
		rec, err := l.store.GetTransaction(ctx, opts.Signature)
		if errors.Is(err, store.ErrTransactionNotFound) {
			return WrapExitError(ExitCommandError, "transaction not found", err)
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read transaction", err)
		}
		records = []ir.TransactionRecord{rec}
	} else {
		records, err = l.store.ReadTransactions(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read transaction log", err)
		}
	}

	result := buildTrace(filterRecords(records, opts))

	if opts.Format == "json" {
		return outputTraceJSON(cmd, result)
	}
	return outputTraceText(cmd, l, result, opts.Verbose)
}

// filterRecords applies the instruction, status and limit filters.
func filterRecords(records []ir.TransactionRecord, opts *TraceOptions) []ir.TransactionRecord {
	var out []ir.TransactionRecord
	for _, rec := range records {
		if opts.Failed && rec.Succeeded() {
			continue
		}
		if opts.Instruction != "" && !hasInstruction(rec, opts.Instruction) {
			continue
		}
		out = append(out, rec)
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[len(out)-opts.Limit:]
	}
	return out
}

func hasInstruction(rec ir.TransactionRecord, name string) bool {
	for _, inst := range rec.Instructions {
		if inst.Name == name {
			return true
		}
	}
	return false
}

// buildTrace converts log records to trace output.
func buildTrace(records []ir.TransactionRecord) TraceResult {
	result := TraceResult{Transactions: make([]TraceTransaction, 0, len(records))}
	for _, rec := range records {
		tx := TraceTransaction{
			Signature:    rec.Signature,
			Slot:         rec.Slot,
			FeePayer:     rec.FeePayer,
			Status:       rec.Status,
			ErrorTag:     rec.ErrorTag,
			ErrorMessage: rec.ErrorMessage,
			Instructions: make([]TraceInstruction, 0, len(rec.Instructions)),
			Logs:         rec.Logs,
		}
		for _, inst := range rec.Instructions {
			tx.Instructions = append(tx.Instructions, TraceInstruction{
				Program:  inst.Program,
				Name:     inst.Name,
				Accounts: inst.Accounts,
				Args:     irObjectToMap(inst.Args),
			})
		}
		result.Transactions = append(result.Transactions, tx)

		if rec.Succeeded() {
			result.Stats.Succeeded++
		} else {
			result.Stats.Failed++
		}
	}
	result.Stats.Total = len(records)
	return result
}

// irObjectToMap converts an ir.IRObject to a plain map.
func irObjectToMap(obj ir.IRObject) map[string]any {
	if len(obj) == 0 {
		return nil
	}
	m, _ := ir.ToAny(obj).(map[string]any)
	return m
}

func outputTraceJSON(cmd *cobra.Command, result TraceResult) error {
	f := &OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}
	return f.Success(result)
}

func outputTraceText(cmd *cobra.Command, l *ledger, result TraceResult, verbose bool) error {
	w := cmd.OutOrStdout()

	if len(result.Transactions) == 0 {
		fmt.Fprintln(w, "No transactions.")
		return nil
	}

	for _, tx := range result.Transactions {
		mark := "✓"
		status := tx.Status
		if tx.Status != ir.StatusOK {
			mark = "✗"
			status = tx.ErrorTag
		}
		fmt.Fprintf(w, "%s [slot %d] %s %s\n", mark, tx.Slot, shortSignature(tx.Signature), status)

		for _, inst := range tx.Instructions {
			fmt.Fprintf(w, "    %s(%s)", inst.Name, formatArgs(inst.Args))
			if verbose {
				names := make([]string, len(inst.Accounts))
				for i, a := range inst.Accounts {
					names[i] = labelOf(l, a)
				}
				fmt.Fprintf(w, " [%s]", strings.Join(names, ", "))
			}
			fmt.Fprintln(w)
		}
		if verbose {
			if tx.ErrorMessage != "" {
				fmt.Fprintf(w, "    error: %s\n", tx.ErrorMessage)
			}
			for _, line := range tx.Logs {
				fmt.Fprintf(w, "    | %s\n", line)
			}
		}
	}

	fmt.Fprintf(w, "\n%d transactions: %d succeeded, %d failed\n",
		result.Stats.Total, result.Stats.Succeeded, result.Stats.Failed)
	return nil
}

func labelOf(l *ledger, addr string) string {
	pk, err := solana.PublicKeyFromBase58(addr)
	if err != nil {
		return addr
	}
	return l.label(pk)
}

// formatArgs renders args as sorted key=value pairs.
func formatArgs(args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, args[k])
	}
	return strings.Join(parts, ", ")
}

func shortSignature(sig string) string {
	if len(sig) <= 16 {
		return sig
	}
	return sig[:8] + "…" + sig[len(sig)-8:]
}
