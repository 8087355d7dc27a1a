package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/ppiankov/sendtap/internal/redact"
	"github.com/ppiankov/sendtap/internal/token"
)

var decodeJSON bool

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().BoolVar(&decodeJSON, "json", false, "Print all claims as JSON")
}

var decodeCmd = &cobra.Command{
	Use:   "decode <authorization-value>",
	Short: "Decode the claims of an authorization header value",
	Long: "Strips a Bearer or Bot scheme and decodes the token payload without\n" +
		"verifying its signature. Quote the value: sendtap decode \"Bearer eyJ...\"",
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

func runDecode(cmd *cobra.Command, args []string) error {
	claims, err := token.Decode(args[0])
	if err != nil {
		logger.Debugw("decode failed", "value", redact.MaskSecret(args[0]), "error", err)
		return err
	}
	out := cmd.OutOrStdout()

	if decodeJSON {
		data, err := json.MarshalIndent(claims.MapClaims, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal claims: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	subject, ok := claims.Subject()
	if !ok {
		subject = "unknown"
	}
	fmt.Fprintf(out, "Subject: %s\n", subject)
	if exp, ok := claims.Expiry(); ok {
		fmt.Fprintf(out, "Expiry:  %s%s\n", exp, relativeExpiry(exp))
	}
	fmt.Fprintf(out, "Claims:  %d\n", len(claims.MapClaims))
	return nil
}

// relativeExpiry renders a Unix-seconds expiry as " (in 3 hours)".
func relativeExpiry(exp string) string {
	secs, err := strconv.ParseFloat(exp, 64)
	if err != nil {
		return ""
	}
	return " (" + humanize.Time(time.Unix(int64(secs), 0)) + ")"
}
