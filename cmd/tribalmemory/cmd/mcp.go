package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmcp/internal/memory"
)

// rpcRequest is one line of newline-delimited JSON read from stdin: a
// method name naming a façade operation, plus its raw parameters.
type rpcRequest struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// rpcResponse is the corresponding line written to stdout.
type rpcResponse struct {
	ID     json.RawMessage `json:"id,omitempty"`
	Result any             `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func newMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Run the memory service as a stdio agent-host server",
		Long: `Read newline-delimited JSON requests from stdin, dispatch each to the
memory service façade (remember/recall/correct/forget/get/get_stats/
recall_entity), and write one JSON response per line to stdout.

Framing and handshake details of any specific agent-host RPC protocol
are this command's responsibility to adapt, not the memory service's;
this is the minimal dispatch loop the 'init' command's registered
hosts invoke.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			svc, err := memory.Get(cfg)
			if err != nil {
				return fmt.Errorf("start memory service: %w", err)
			}
			return runStdioLoop(cmd.Context(), svc, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	return cmd
}

func runStdioLoop(ctx context.Context, svc *memory.Service, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	enc := json.NewEncoder(out)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var req rpcRequest
		if err := json.Unmarshal(line, &req); err != nil {
			_ = enc.Encode(rpcResponse{Error: fmt.Sprintf("invalid request: %v", err)})
			continue
		}

		result, err := dispatch(ctx, svc, req.Method, req.Params)
		resp := rpcResponse{ID: req.ID, Result: result}
		if err != nil {
			resp.Error = err.Error()
		}
		if err := enc.Encode(resp); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	slog.Info("mcp stdio loop ended")
	return nil
}

// dispatch routes one request to the corresponding façade operation.
// Kept free of stdio concerns so it can be tested directly.
func dispatch(ctx context.Context, svc *memory.Service, method string, params json.RawMessage) (any, error) {
	switch method {
	case "remember":
		var req memory.RememberRequest
		if err := unmarshalParams(params, &req); err != nil {
			return nil, err
		}
		return svc.Remember(ctx, req)

	case "recall":
		var req memory.RecallRequest
		if err := unmarshalParams(params, &req); err != nil {
			return nil, err
		}
		return svc.Recall(ctx, req)

	case "correct":
		var req struct {
			OriginalID        string `json:"original_id"`
			CorrectedContent  string `json:"corrected_content"`
			CorrectionContext string `json:"correction_context"`
		}
		if err := unmarshalParams(params, &req); err != nil {
			return nil, err
		}
		return svc.Correct(ctx, req.OriginalID, req.CorrectedContent, req.CorrectionContext)

	case "forget":
		var req struct {
			ID string `json:"id"`
		}
		if err := unmarshalParams(params, &req); err != nil {
			return nil, err
		}
		return svc.Forget(ctx, req.ID)

	case "get":
		var req struct {
			ID string `json:"id"`
		}
		if err := unmarshalParams(params, &req); err != nil {
			return nil, err
		}
		return svc.Get(ctx, req.ID)

	case "get_stats":
		return svc.GetStats(ctx)

	case "recall_entity":
		var req struct {
			EntityName string `json:"entity_name"`
			Hops       int    `json:"hops"`
			Limit      int    `json:"limit"`
		}
		if err := unmarshalParams(params, &req); err != nil {
			return nil, err
		}
		return svc.RecallEntity(ctx, req.EntityName, req.Hops, req.Limit)

	default:
		return nil, fmt.Errorf("unknown method %q", method)
	}
}

func unmarshalParams(params json.RawMessage, dst any) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, dst); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}
