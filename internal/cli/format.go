package cli

import (
	"fmt"
	"os"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	labelColor   = color.New(color.FgWhite, color.Bold)
)

// PrintSuccess prints a success message with a checkmark.
func PrintSuccess(msg string) {
	_, _ = successColor.Printf("✓ %s\n", msg)
}

// PrintError prints a classified error message to stderr.
func PrintError(msg string) {
	_, _ = errorColor.Fprintf(os.Stderr, "✗ %s\n", msg)
}

// PrintInfo prints an informational message.
func PrintInfo(msg string) {
	fmt.Println(msg)
}

// PrintLabelValue prints an indented label-value pair.
func PrintLabelValue(label, value string) {
	_, _ = labelColor.Printf("  %s: ", label)
	fmt.Println(value)
}
