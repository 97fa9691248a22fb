package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	config "github.com/drummonds/pdfworker/config"
	engine "github.com/drummonds/pdfworker/engine"
	"github.com/drummonds/pdfworker/engine/pdfdoc"
	"github.com/drummonds/pdfworker/engine/pdfrenderer"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// injectGlobals injects all of our globals into their packages
func injectGlobals(logger *slog.Logger) {
	Logger = logger
	config.Logger = Logger
	engine.Logger = Logger
	pdfdoc.Logger = Logger
	pdfrenderer.Logger = Logger
}

const usage = `usage: pdfworker <command> [flags] [files]

commands:
  merge   -o out.pdf a.pdf b.pdf         merge every page of every file
  pick    -o out.pdf -pages 2,0,2 in.pdf copy selected zero-based pages
  images  -o out.pdf a.png b.jpg         one page per image
  check   in.pdf                         report whether a password is needed
  sniff   in.pdf                         guess encryption from the trailer
  lock    -user u [-owner o] in.pdf      encrypt in place
  unlock  -password p in.pdf             remove security in place
  render  -dir out/ [-pages 0,1] in.pdf  one image per page
  long    -o out.png [-pages 0,1] in.pdf pages stacked into one image
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	workerConfig, logger := config.SetupWorker()
	injectGlobals(logger)

	os.Exit(run(os.Args[1], os.Args[2:], workerConfig, os.Stdout, os.Stderr))
}

// run executes one command and returns the process exit code
func run(command string, args []string, workerConfig config.WorkerConfig, stdout, stderr io.Writer) int {
	var renderer pdfrenderer.Renderer
	if command == "render" || command == "long" {
		r, err := pdfrenderer.NewRenderer(workerConfig.Renderer)
		if err != nil {
			fmt.Fprintf(stderr, "unable to initialise renderer: %v\n", err)
			return 1
		}
		renderer = r
	}
	worker := engine.NewWorkerFromConfig(workerConfig, renderer)
	defer worker.Close()

	result, err := dispatch(worker, command, args, stderr)
	if err != nil {
		var usageErr usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintln(stderr, usageErr)
			fmt.Fprint(stderr, usage)
			return 2
		}
		code := engine.KindOf(err)
		if code == "" {
			code = engine.KindIOError
		}
		fmt.Fprintf(stderr, "%s: %v\n", code, err)
		return 1
	}

	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		fmt.Fprintf(stderr, "unable to write result: %v\n", err)
		return 1
	}
	return 0
}

// usageError marks bad command line input
type usageError string

func (e usageError) Error() string { return string(e) }

func dispatch(worker *engine.Worker, command string, args []string, stderr io.Writer) (interface{}, error) {
	flags := flag.NewFlagSet(command, flag.ContinueOnError)
	flags.SetOutput(stderr)
	output := flags.String("o", "", "output file")
	pagesFlag := flags.String("pages", "", "comma separated zero-based page indices")
	userPassword := flags.String("user", "", "user password")
	ownerPassword := flags.String("owner", "", "owner password, defaults to the user password")
	password := flags.String("password", "", "password to unlock with")
	dir := flags.String("dir", ".", "output directory for rendered pages")
	format := flags.String("format", "png", "image format, png or jpg")
	quality := flags.Int("quality", 100, "JPEG quality 0-100")
	maxWidth := flags.Int("max-width", -1, "image width limit in pixels, -1 keeps the configured default")
	maxHeight := flags.Int("max-height", -1, "image height limit in pixels, -1 keeps the configured default")
	keepAspect := flags.Bool("keep-aspect", true, "keep the aspect ratio when rescaling images")

	if err := flags.Parse(args); err != nil {
		return nil, usageError(err.Error())
	}
	files := flags.Args()

	pages, err := parsePages(*pagesFlag)
	if err != nil {
		return nil, err
	}

	single := func() (string, error) {
		if len(files) != 1 {
			return "", usageError(fmt.Sprintf("%s expects exactly one input file", command))
		}
		return files[0], nil
	}

	switch command {
	case "merge":
		if *output == "" {
			return nil, usageError("merge requires -o")
		}
		path, err := worker.MergeAll(files, *output)
		return map[string]string{"outputPath": path}, err

	case "pick":
		input, err := single()
		if err != nil {
			return nil, err
		}
		if *output == "" {
			return nil, usageError("pick requires -o")
		}
		if pages == nil {
			pages = []int{}
		}
		path, err := worker.MergeSelectedPages(input, *output, pages, progressLogger(command))
		return map[string]string{"outputPath": path}, err

	case "images":
		if *output == "" {
			return nil, usageError("images requires -o")
		}
		imageConfig := worker.ImageDefaults
		if *maxWidth >= 0 {
			imageConfig.Rescale.MaxWidth = *maxWidth
		}
		if *maxHeight >= 0 {
			imageConfig.Rescale.MaxHeight = *maxHeight
		}
		imageConfig.KeepAspectRatio = *keepAspect
		path, err := worker.ImagesToPdf(files, *output, &imageConfig)
		return map[string]string{"outputPath": path}, err

	case "check":
		input, err := single()
		if err != nil {
			return nil, err
		}
		protected, err := worker.IsProtected(input)
		return map[string]interface{}{"filePath": input, "protected": protected}, err

	case "sniff":
		input, err := single()
		if err != nil {
			return nil, err
		}
		encrypted, err := engine.LooksEncrypted(input)
		return map[string]interface{}{"filePath": input, "protected": encrypted}, err

	case "lock":
		input, err := single()
		if err != nil {
			return nil, err
		}
		err = worker.Lock(input, *userPassword, *ownerPassword)
		return map[string]interface{}{"filePath": input, "protected": err == nil}, err

	case "unlock":
		input, err := single()
		if err != nil {
			return nil, err
		}
		unlocked, err := worker.Unlock(input, *password)
		return map[string]interface{}{"filePath": input, "protected": !unlocked}, err

	case "render":
		input, err := single()
		if err != nil {
			return nil, err
		}
		rasterConfig := engine.NewRasterConfig(pages, engine.ParseImageFormat(*format), *quality)
		rasterConfig.Progress = progressLogger(command)
		paths, err := worker.PagesToImages(input, *dir, &rasterConfig)
		return map[string]interface{}{"outputPaths": paths}, err

	case "long":
		input, err := single()
		if err != nil {
			return nil, err
		}
		if *output == "" {
			return nil, usageError("long requires -o")
		}
		rasterConfig := engine.NewRasterConfig(pages, engine.ParseImageFormat(*format), *quality)
		rasterConfig.Progress = progressLogger(command)
		path, err := worker.PagesToLongImage(input, *output, &rasterConfig)
		return map[string]string{"outputPath": path}, err

	default:
		return nil, usageError(fmt.Sprintf("unknown command %q", command))
	}
}

// parsePages turns "2,0,2" into []int{2, 0, 2}, an empty flag means no selection
func parsePages(value string) ([]int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	parts := strings.Split(value, ",")
	pages := make([]int, 0, len(parts))
	for _, part := range parts {
		page, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, usageError(fmt.Sprintf("invalid page index %q", part))
		}
		pages = append(pages, page)
	}
	return pages, nil
}

func progressLogger(command string) engine.ProgressFunc {
	return func(current, total int) {
		Logger.Debug("Progress", "command", command, "current", current, "total", total)
	}
}
