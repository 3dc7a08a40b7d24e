package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aniruddha-M-Dhir/learnflow-lms/internal/gateway"
)

func newAPICmd(opts *rootOptions) *cobra.Command {
	apiCmd := &cobra.Command{
		Use:   "api <METHOD> <path>",
		Short: "Send an authenticated request to the API",
		Long: `Send one request to any LearnFlow endpoint with the stored session.

The request is retried once with a renewed credential if the server answers 401.
Use -F to send multipart form data; prefix a value with @ to attach a file.`,
		Example: `  learnflow api GET /api/courses/
  learnflow api POST /api/courses/ -d '{"title":"Go 101"}'
  learnflow api POST /api/courses/7/materials/ -F title=Slides -F file=@slides.pdf`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			method := strings.ToUpper(args[0])
			target := args[1]

			data, _ := cmd.Flags().GetString("data")
			headers, _ := cmd.Flags().GetStringArray("header")
			fields, _ := cmd.Flags().GetStringArray("form")

			if data != "" && len(fields) > 0 {
				return fmt.Errorf("--data and --form cannot be combined")
			}

			header, err := parseHeaders(headers)
			if err != nil {
				return err
			}

			var body io.Reader
			switch {
			case len(fields) > 0:
				form, err := buildForm(fields)
				if err != nil {
					return err
				}
				body = form
			case data != "":
				body = strings.NewReader(data)
			}

			return opts.run(cmd, func(ctx context.Context, app *App) error {
				resp, err := app.Gateway.Request(ctx, target, gateway.Options{
					Method: method,
					Header: header,
					Body:   body,
				})
				if err != nil {
					return err
				}
				return printResponse(cmd.OutOrStdout(), resp)
			})
		},
	}

	apiCmd.Flags().StringP("data", "d", "", "request body")
	apiCmd.Flags().StringArrayP("header", "H", nil, "request header as 'Key: Value' (repeatable)")
	apiCmd.Flags().StringArrayP("form", "F", nil, "multipart field as key=value or key=@file (repeatable)")

	return apiCmd
}

func parseHeaders(values []string) (http.Header, error) {
	header := make(http.Header)
	for _, value := range values {
		key, val, ok := strings.Cut(value, ":")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid header %q: expected 'Key: Value'", value)
		}
		header.Add(strings.TrimSpace(key), strings.TrimSpace(val))
	}
	return header, nil
}

func buildForm(values []string) (*gateway.FormData, error) {
	fields := make(map[string]string)
	var files []gateway.FormFile

	for _, value := range values {
		key, val, ok := strings.Cut(value, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid form field %q: expected key=value", value)
		}

		if path, isFile := strings.CutPrefix(val, "@"); isFile {
			content, err := os.ReadFile(path) // #nosec G304 -- path is supplied by the user on purpose
			if err != nil {
				return nil, fmt.Errorf("failed to read form file: %w", err)
			}
			files = append(files, gateway.FormFile{Field: key, Filename: filepath.Base(path), Content: content})
			continue
		}
		fields[key] = val
	}

	return gateway.NewFormData(fields, files...)
}

// printResponse writes the status line and body, indenting JSON bodies. It
// returns an error for non-2xx statuses so the exit code reflects them.
//
//nolint:bodyclose // Response body is closed by this function
func printResponse(w io.Writer, resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	fmt.Fprintf(w, "HTTP %s\n", resp.Status)

	if strings.Contains(resp.Header.Get("Content-Type"), "json") {
		var pretty bytes.Buffer
		if json.Indent(&pretty, body, "", "  ") == nil {
			body = pretty.Bytes()
		}
	}
	if len(body) > 0 {
		fmt.Fprintln(w, string(body))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	return nil
}
