package cmd

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/stylegans/stylegans/convert"
	"github.com/stylegans/stylegans/envconfig"
	"github.com/stylegans/stylegans/fs/ggml"
	"github.com/stylegans/stylegans/logutil"
	"github.com/stylegans/stylegans/ml"
	"github.com/stylegans/stylegans/model"
	"github.com/stylegans/stylegans/model/imageproc"
	"github.com/stylegans/stylegans/progress"
	"github.com/stylegans/stylegans/runner"

	_ "github.com/stylegans/stylegans/model/models"
)

const gridRows, gridCols = 4, 4

type convertOptions struct {
	WeightDir string
	OutputDir string
	Image     string

	BatchSize int
	Device    ml.Device
	FileType  ggml.FileType
	Strict    bool
	Scale     float64
}

func ConvertHandler(cmd *cobra.Command, args []string) error {
	version, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("%w %q", model.ErrUnknownVersion, args[0])
	}

	arch, err := model.Architecture(version)
	if err != nil {
		return err
	}

	setting, err := model.Lookup(args[1])
	if err != nil {
		return err
	}

	opts, err := parseConvertOptions(cmd)
	if err != nil {
		return err
	}

	slog.Info("model construction", "architecture", arch, "model", setting.Name)
	m, err := model.New(ggml.KV{
		"general.architecture": arch,
		arch + ".resolution":   uint32(setting.Resolution),
	})
	if err != nil {
		return err
	}

	return runConvert(cmd.Context(), m, setting, opts)
}

func parseConvertOptions(cmd *cobra.Command) (convertOptions, error) {
	var opts convertOptions
	var err error

	if opts.WeightDir, err = cmd.Flags().GetString("weight_dir"); err != nil {
		return opts, err
	}

	if opts.OutputDir, err = cmd.Flags().GetString("output_dir"); err != nil {
		return opts, err
	}

	if opts.Image, err = cmd.Flags().GetString("image"); err != nil {
		return opts, err
	}

	if opts.BatchSize, err = cmd.Flags().GetInt("batch_size"); err != nil {
		return opts, err
	}

	if opts.BatchSize < 1 {
		return opts, fmt.Errorf("batch size must be at least 1, got %d", opts.BatchSize)
	}

	device, err := cmd.Flags().GetString("device")
	if err != nil {
		return opts, err
	}

	if opts.Device, err = ml.ParseDevice(device); err != nil {
		return opts, err
	}

	dtype, err := cmd.Flags().GetString("dtype")
	if err != nil {
		return opts, err
	}

	if opts.FileType, err = ggml.ParseFileType(dtype); err != nil {
		return opts, err
	}

	if opts.Strict, err = cmd.Flags().GetBool("strict"); err != nil {
		return opts, err
	}

	if opts.Scale, err = cmd.Flags().GetFloat64("scale"); err != nil {
		return opts, err
	}

	return opts, nil
}

// runConvert converts the source weights of s into m, renders the sample
// grid from the stored latents and saves the converted checkpoint.
func runConvert(ctx context.Context, m model.Model, s model.Setting, opts convertOptions) error {
	slog.Info("model weights load", "file", filepath.Join(opts.WeightDir, s.SrcWeight))
	arrays, err := readWeights(opts.WeightDir, s.SrcWeight)
	if err != nil {
		return err
	}

	slog.Info("set state_dict", "arrays", len(arrays))
	sd, skipped, err := convert.Convert(arrays, m.Table())
	if err != nil {
		return err
	}

	if len(skipped) > 0 && opts.Strict {
		names := make([]string, len(skipped))
		for i, skip := range skipped {
			names[i] = skip.String()
		}
		return fmt.Errorf("%d source weights not found: %s", len(skipped), strings.Join(names, ", "))
	}

	if err := model.Load(m, sd); err != nil {
		return err
	}

	slog.Info("load latents", "file", filepath.Join(opts.OutputDir, s.SrcLatent))
	latents, err := convert.ReadLatents(os.DirFS(opts.OutputDir), s.SrcLatent)
	if err != nil {
		return err
	}

	slog.Info("network forward", "samples", latents.Shape[0], "batch_size", opts.BatchSize)
	images, err := generate(ctx, m, latents, runner.Options{BatchSize: opts.BatchSize, Device: opts.Device})
	if err != nil {
		return err
	}

	image := cmp.Or(opts.Image, s.DstImage)
	slog.Info("image output", "file", filepath.Join(opts.OutputDir, image))
	if err := writeGrid(images, filepath.Join(opts.OutputDir, image), opts.Scale); err != nil {
		return err
	}

	slog.Info("weight save", "file", filepath.Join(opts.WeightDir, s.DstWeight), "file_type", opts.FileType)
	if err := save(filepath.Join(opts.WeightDir, s.DstWeight), m, s.Name, opts.FileType); err != nil {
		return err
	}

	slog.Info("all done")
	return nil
}

// generate runs the inference loop, rendering a progress bar on stderr
// unless progress output is disabled.
func generate(ctx context.Context, m model.Model, latents *convert.Array, opts runner.Options) (*imageproc.Batch, error) {
	opts.Threads = envconfig.NumThreads
	if !envconfig.NoProgress {
		p := progress.NewProgress(os.Stderr)
		defer p.StopAndClear()

		bar := progress.NewStepBar("network forward", latents.Shape[0])
		p.Add(bar)
		opts.Progress = bar.Set
	}

	return runner.Generate(ctx, m, latents, opts)
}

// readWeights reads the source weights in dir, rendering the bytes read
// unless progress output is disabled.
func readWeights(dir, name string) (convert.Arrays, error) {
	fsys := os.DirFS(dir)
	if envconfig.NoProgress {
		return convert.ReadArrays(fsys, name)
	}

	fi, err := fs.Stat(fsys, name)
	if err != nil {
		return nil, err
	}

	p := progress.NewProgress(os.Stderr)
	defer p.StopAndClear()

	bar := progress.NewBar("model weights load", fi.Size())
	p.Add(bar)
	return convert.ReadArrays(meteredFS{FS: fsys, w: bar}, name)
}

// meteredFS copies everything read from its files to w.
type meteredFS struct {
	fs.FS
	w io.Writer
}

func (m meteredFS) Open(name string) (fs.File, error) {
	f, err := m.FS.Open(name)
	if err != nil {
		return nil, err
	}
	return meteredFile{File: f, w: m.w}, nil
}

type meteredFile struct {
	fs.File
	w io.Writer
}

func (f meteredFile) Read(p []byte) (int, error) {
	n, err := f.File.Read(p)
	f.w.Write(p[:n])
	return n, err
}

func save(path string, m model.Model, name string, ft ggml.FileType) error {
	if !envconfig.NoProgress {
		p := progress.NewProgress(os.Stderr)
		defer p.StopAndClear()

		spinner := progress.NewSpinner("weight save")
		defer spinner.Stop()
		p.Add(spinner)
	}

	return model.Save(path, m, name, ft)
}

func writeGrid(images *imageproc.Batch, path string, scale float64) error {
	img, err := imageproc.Scale(imageproc.Tile(images, gridRows, gridCols).Image(), scale)
	if err != nil {
		return err
	}

	return imageproc.Write(path, img)
}

func appendEnvDocs(cmd *cobra.Command, envs []envconfig.EnvVar) {
	if len(envs) == 0 {
		return
	}

	envUsage := `
Environment Variables:
`
	for _, e := range envs {
		envUsage += fmt.Sprintf("      %-24s   %s\n", e.Name, e.Description)
	}

	cmd.SetUsageTemplate(cmd.UsageTemplate() + envUsage)
}

func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "stylegans VERSION MODEL",
		Short: "Convert pretrained StyleGAN weights and render a sample grid",
		Long: fmt.Sprintf(`Convert pretrained StyleGAN weights and render a sample grid.

VERSION is the generator version (1 or 2). MODEL is one of %s.`, strings.Join(model.Settings(), ", ")),
		Args: cobra.ExactArgs(2),
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Disable usage printing on errors
			cmd.SilenceUsage = true
			logutil.Init(os.Stderr, envconfig.LogLevel())
		},
		RunE: ConvertHandler,
	}

	rootCmd.Flags().StringP("weight_dir", "w", envconfig.WeightDir, "Directory with the source weights and the converted checkpoint")
	rootCmd.Flags().StringP("output_dir", "o", envconfig.OutputDir, "Directory with the latents and the sample grid")
	rootCmd.Flags().Int("batch_size", 1, "Number of latents per forward batch")
	rootCmd.Flags().String("device", "gpu", "Inference device (gpu or cpu)")
	rootCmd.Flags().String("dtype", "f32", "Checkpoint storage type (f32, f16 or bf16)")
	rootCmd.Flags().Bool("strict", false, "Fail when a source weight is missing")
	rootCmd.Flags().Float64("scale", 1, "Resample factor for the sample grid")
	rootCmd.Flags().String("image", "", "Sample grid file name; the extension selects the format")

	cobra.EnableCommandSorting = false

	generateCmd := &cobra.Command{
		Use:   "generate CHECKPOINT",
		Short: "Render a sample grid from a converted checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE:  GenerateHandler,
	}

	generateCmd.Flags().String("latents", "", "Latent batch to render (pickle or safetensors); random when empty")
	generateCmd.Flags().Int64("seed", 0, "Seed for random latents")
	generateCmd.Flags().Int("count", gridRows*gridCols, "Number of random latents")
	generateCmd.Flags().Int("batch_size", 1, "Number of latents per forward batch")
	generateCmd.Flags().String("device", "gpu", "Inference device (gpu or cpu)")
	generateCmd.Flags().String("output", "grid.png", "Sample grid path; the extension selects the format")
	generateCmd.Flags().Float64("scale", 1, "Resample factor for the sample grid")

	showCmd := &cobra.Command{
		Use:   "show CHECKPOINT",
		Short: "Show the metadata and tensors of a converted checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE:  ShowHandler,
	}

	showCmd.Flags().Bool("stats", false, "Show minimum, maximum and mean of every tensor")

	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "List the known pretrained models",
		Args:  cobra.NoArgs,
		RunE:  ModelsHandler,
	}

	envVars := envconfig.AsMap()
	envs := []envconfig.EnvVar{envVars["STYLEGANS_DEBUG"], envVars["STYLEGANS_NUM_THREADS"], envVars["STYLEGANS_NOPROGRESS"]}
	appendEnvDocs(rootCmd, append([]envconfig.EnvVar{envVars["STYLEGANS_WEIGHT_DIR"], envVars["STYLEGANS_OUTPUT_DIR"]}, envs...))
	appendEnvDocs(generateCmd, envs)

	rootCmd.AddCommand(generateCmd, showCmd, modelsCmd)
	return rootCmd
}
