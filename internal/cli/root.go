// Package cli wires the command line surface to the conversion,
// configuration and planning packages. One invocation is one run:
// detect the input format, optionally report metadata (--info), prepare
// the workspace, merge and validate configuration, then preview or
// dispatch the execution plan.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"vesselexpress/internal/models"
	"vesselexpress/pkg/config"
	"vesselexpress/pkg/convert"
	"vesselexpress/pkg/format"
	"vesselexpress/pkg/metadata"
	"vesselexpress/pkg/nifti"
	"vesselexpress/pkg/pipeline"
)

var (
	inputPath   string
	configPath  string
	outputDir   string
	pipelineDir string
	coresReq    string
	dryRun      bool
	verbose     bool
	infoMode    bool
)

var rootCmd = &cobra.Command{
	Use:   "vesselexpress",
	Short: "Blood vessel analysis in 3D image volumes",
	Long: `vesselexpress prepares vessel imaging data and drives the VesselExpress
analysis pipeline.

Supported formats: TIFF (.tif, .tiff), PNG (.png), JPG (.jpg),
NIfTI (.nii, .nii.gz). NIfTI volumes are converted to a multi-page TIFF
working file and their voxel spacing is propagated into the pipeline
configuration.`,
	Example: `  # Run on a TIFF file with default settings
  vesselexpress -i sample.tiff

  # Run on a NIfTI file with custom config
  vesselexpress -i brain_vessels.nii.gz -c custom_config.json

  # Run with 4 cores and verbose output
  vesselexpress -i sample.tiff --cores 4 --verbose

  # Check NIfTI file information
  vesselexpress -i brain.nii.gz --info

  # Dry run to see what would be executed
  vesselexpress -i sample.tiff --dry-run`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRoot,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&inputPath, "input", "i", "", "input image file (TIFF, PNG, JPG, or NIfTI format)")
	flags.StringVarP(&configPath, "config", "c", "", "configuration overlay file (default: built-in defaults)")
	flags.StringVarP(&outputDir, "output", "o", "", "output directory (default: <pipeline-dir>/data)")
	flags.StringVar(&pipelineDir, "pipeline-dir", "VesselExpress", "directory containing the workflow definition")
	flags.StringVar(&coresReq, "cores", "all", "number of CPU cores to use, or \"all\"")
	flags.BoolVar(&dryRun, "dry-run", false, "show the execution plan without running anything")
	flags.BoolVar(&verbose, "verbose", false, "show verbose output")
	flags.BoolVar(&infoMode, "info", false, "show information about the input file and exit")
	cobra.CheckErr(rootCmd.MarkFlagRequired("input"))
}

// Execute runs the root command and reports any failure as a one-line
// classification plus the underlying cause.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		PrintError(fmt.Sprintf("%s: %v", classify(err), err))
	}
	return err
}

// ExitCode maps an Execute error to the process exit status. A workflow
// engine failure keeps its own exit code; everything else is 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var invErr *pipeline.InvocationError
	if errors.As(err, &invErr) && invErr.ExitCode > 0 {
		return invErr.ExitCode
	}
	return 1
}

// classify maps an error to its user-facing category.
func classify(err error) string {
	var valErr *config.ValidationError
	var invErr *pipeline.InvocationError
	var pathErr *os.PathError
	var linkErr *os.LinkError
	switch {
	case errors.Is(err, format.ErrUnsupportedFormat):
		return "Unsupported format"
	case errors.Is(err, nifti.ErrDecode):
		return "Decode error"
	case errors.As(err, &valErr):
		return "Configuration error"
	case errors.As(err, &invErr):
		return "Pipeline error"
	case errors.As(err, &pathErr), errors.As(err, &linkErr):
		// Unwritable destinations surface as wrapped filesystem errors
		// from the canonical-file, sidecar and config writers.
		return "I/O error"
	default:
		return "Error"
	}
}

func runRoot(cmd *cobra.Command, args []string) error {
	// Format classification happens before touching the filesystem.
	desc, err := format.Detect(inputPath)
	if err != nil {
		return err
	}

	if _, err := os.Stat(inputPath); err != nil {
		return fmt.Errorf("input file not found: %s", inputPath)
	}

	workers, err := pipeline.ResolveWorkers(coresReq)
	if err != nil {
		return err
	}

	// Volumetric inputs are decoded once, up front: the metadata report
	// needs the header and the configuration merge needs the spacing.
	var vol *models.Volume
	if desc.Kind == format.KindVolumetric {
		if vol, err = nifti.Decode(desc.Path); err != nil {
			return err
		}
	}

	if infoMode {
		return runInfo(desc, vol)
	}

	merged, err := mergeConfig(vol)
	if err != nil {
		return err
	}
	summary, err := json.MarshalIndent(merged, "", "    ")
	if err != nil {
		return fmt.Errorf("rendering configuration: %w", err)
	}
	if verbose {
		PrintInfo("Resolved configuration:")
		PrintInfo(string(summary))
	}

	plan := pipeline.Build(pipeline.Options{
		PipelineDir:   pipelineDir,
		Workers:       workers,
		DryRun:        dryRun,
		Verbose:       verbose,
		ConfigSummary: string(summary),
	})

	if dryRun {
		return plan.Preview(os.Stdout)
	}

	workspace := outputDir
	if workspace == "" {
		workspace = filepath.Join(pipelineDir, "data")
	}
	if err := os.MkdirAll(workspace, 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	if err := setupWorkspace(desc, vol, workspace, merged); err != nil {
		return err
	}

	if verbose {
		PrintInfo("Execution plan:")
		for i, inv := range plan.Invocations {
			PrintInfo(fmt.Sprintf("  %d. %s", i+1, inv))
		}
	}

	fmt.Println("\nRunning VesselExpress...")
	fmt.Printf("Command: %s\n\n", plan.Invocations[0])

	engine := &pipeline.ExecEngine{Stdout: os.Stdout, Stderr: os.Stderr}
	if err := plan.Dispatch(cmd.Context(), engine); err != nil {
		return err
	}

	PrintSuccess("VesselExpress completed successfully!")
	return nil
}

// runInfo prints the metadata report and exits without writing anything.
func runInfo(desc format.Descriptor, vol *models.Volume) error {
	var rec metadata.Record
	if vol != nil {
		rec = metadata.FromVolume(desc.Path, desc, vol)
	} else {
		var err error
		if rec, err = metadata.InspectRaster(desc.Path, desc); err != nil {
			return err
		}
	}
	rec.Report(os.Stdout)
	return nil
}

// mergeConfig builds the run configuration: defaults, extracted voxel
// spacing, then the user overlay, validated as a whole.
func mergeConfig(vol *models.Volume) (config.Config, error) {
	merged := config.DefaultConfig()
	if vol != nil && vol.Spacing != nil {
		merged = config.WithSpacing(merged, *vol.Spacing)
	}

	if configPath != "" {
		overlay, err := config.LoadOverlay(configPath)
		if err != nil {
			return nil, err
		}
		merged = config.Merge(merged, overlay)
	}

	if err := config.Validate(merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// setupWorkspace places the working image and the merged configuration
// into the workspace directory.
func setupWorkspace(desc format.Descriptor, vol *models.Volume, workspace string, merged config.Config) error {
	if vol != nil {
		res, err := convert.Volumetric(desc, vol, workspace)
		if err != nil {
			return err
		}
		PrintInfo(fmt.Sprintf("Converted %s to %s", desc.Path, res.CanonicalPath))
		PrintLabelValue("Metadata sidecar", res.SidecarPath)
		if res.Spacing != nil {
			PrintLabelValue("Pixel dimensions (z,y,x)", res.Spacing.String())
		}
	} else {
		res, err := convert.PassThrough(desc, workspace)
		if err != nil {
			return err
		}
		PrintInfo(fmt.Sprintf("Copied input file to: %s", res.CanonicalPath))
	}

	cfgPath := filepath.Join(workspace, "config.json")
	if err := config.Save(cfgPath, merged); err != nil {
		return err
	}
	if verbose {
		PrintLabelValue("Workspace config", cfgPath)
	}
	return nil
}
