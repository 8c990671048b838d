package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/QualityUnit/flowbatch/internal/executor"
	"github.com/QualityUnit/flowbatch/internal/importer"
	"github.com/QualityUnit/flowbatch/internal/output"
	"github.com/QualityUnit/flowbatch/pkg/domain"
	"github.com/QualityUnit/flowbatch/pkg/flowhunt"
	"github.com/QualityUnit/flowbatch/pkg/persistence"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	_ "github.com/QualityUnit/flowbatch/pkg/persistence/memory"
	_ "github.com/QualityUnit/flowbatch/pkg/persistence/redis"
)

const defaultFlowHuntURL = "https://api.flowhunt.io"

type client struct {
	baseURL    string
	token      string
	admin      bool
	httpClient *http.Client
}

type ui struct {
	title func(a ...any) string
	ok    func(a ...any) string
	info  func(a ...any) string
	warn  func(a ...any) string
	err   func(a ...any) string
	dim   func(a ...any) string
}

type profile struct {
	BaseURL     string `yaml:"baseUrl"`
	Token       string `yaml:"token"`
	FlowHuntURL string `yaml:"flowHuntUrl"`
	FlowHuntKey string `yaml:"flowHuntApiKey"`
	FlowID      string `yaml:"flowId"`
	WorkspaceID string `yaml:"workspaceId"`
	Admin       bool   `yaml:"admin"`
}

type cliConfig struct {
	CurrentProfile string             `yaml:"currentProfile"`
	Profiles       map[string]profile `yaml:"profiles"`
}

func newUI() *ui {
	return &ui{
		title: color.New(color.FgHiCyan, color.Bold).SprintFunc(),
		ok:    color.New(color.FgGreen, color.Bold).SprintFunc(),
		info:  color.New(color.FgCyan).SprintFunc(),
		warn:  color.New(color.FgYellow).SprintFunc(),
		err:   color.New(color.FgRed, color.Bold).SprintFunc(),
		dim:   color.New(color.FgHiBlack).SprintFunc(),
	}
}

func (c *client) request(method, path string, body any) (int, []byte, error) {
	var buf *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		buf = bytes.NewReader(b)
	} else {
		buf = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, c.baseURL+path, buf)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.admin {
		req.Header.Set("X-Role", "ADMIN")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out, nil
}

func (c *client) upload(path string, contentType string, body io.Reader) (int, []byte, error) {
	req, err := http.NewRequest(http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", contentType)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.admin {
		req.Header.Set("X-Role", "ADMIN")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, out, nil
}

func main() {
	baseURL := getenv("FLOWBATCH_BASE_URL", "http://localhost:8080")
	token := getenv("FLOWBATCH_TOKEN", "")
	admin := getenvBool("FLOWBATCH_ADMIN", isLocalURL(baseURL))
	profileName := getenv("FLOWBATCH_PROFILE", "")
	ui := newUI()

	root := &cobra.Command{
		Use:   "flowbatch",
		Short: "FlowBatch CLI",
		Long:  "FlowBatch CLI for running and managing batches of flow invocations.",
	}
	root.SetHelpTemplate(helpTemplate(ui))
	root.SilenceUsage = true

	root.PersistentFlags().StringVar(&baseURL, "base-url", baseURL, "Base URL for the FlowBatch server")
	root.PersistentFlags().StringVar(&token, "token", token, "Bearer token")
	root.PersistentFlags().BoolVar(&admin, "admin", admin, "Send X-Role: ADMIN (dev only)")
	root.PersistentFlags().StringVar(&profileName, "profile", profileName, "Config profile")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, _, _ := loadConfig()
		active := resolveProfileName(profileName, cfg)
		prof := cfg.Profiles[active]

		flags := cmd.Flags()
		if !flags.Changed("base-url") {
			if v := strings.TrimSpace(os.Getenv("FLOWBATCH_BASE_URL")); v != "" {
				baseURL = v
			} else if prof.BaseURL != "" {
				baseURL = prof.BaseURL
			}
		}
		if !flags.Changed("token") {
			if v := strings.TrimSpace(os.Getenv("FLOWBATCH_TOKEN")); v != "" {
				token = v
			} else if prof.Token != "" {
				token = prof.Token
			}
		}
		if !flags.Changed("admin") {
			if v := strings.TrimSpace(os.Getenv("FLOWBATCH_ADMIN")); v != "" {
				admin = getenvBool("FLOWBATCH_ADMIN", admin)
			} else if prof.Admin {
				admin = true
			} else if isLocalURL(baseURL) {
				admin = true
			}
		}
		if !flags.Changed("profile") && profileName == "" && active != "" {
			profileName = active
		}
		return nil
	}

	root.AddCommand(initCmd(&profileName, ui))
	root.AddCommand(authCmd(&profileName, ui))
	root.AddCommand(batchCmd(&baseURL, &token, &admin, &profileName, ui))
	root.AddCommand(runCmd(&profileName, ui))
	root.AddCommand(invokeCmd(&profileName, ui))
	root.AddCommand(validateCmd(ui))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.err("[ERROR]"), err.Error())
		os.Exit(1)
	}
}

func initCmd(profileName *string, ui *ui) *cobra.Command {
	var (
		baseURL  string
		token    string
		fhURL    string
		fhKey    string
		flowID   string
		noPrompt bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize CLI config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := loadConfig()
			if err != nil {
				return err
			}
			active := resolveProfileName(*profileName, cfg)
			prof := cfg.Profiles[active]

			if baseURL == "" {
				baseURL = prof.BaseURL
			}
			if baseURL == "" {
				baseURL = "http://localhost:8080"
			}
			if fhURL == "" {
				fhURL = prof.FlowHuntURL
			}
			if fhURL == "" {
				fhURL = defaultFlowHuntURL
			}
			if flowID == "" {
				flowID = prof.FlowID
			}

			if !noPrompt {
				reader := bufio.NewReader(os.Stdin)
				baseURL = prompt(reader, "Server base URL", baseURL)
				fhURL = prompt(reader, "FlowHunt base URL", fhURL)
				flowID = prompt(reader, "Default flow id", flowID)
				if token == "" {
					token = prompt(reader, "Server token (optional)", "")
				}
				if fhKey == "" {
					k, err := promptSecret("FlowHunt API key (optional)")
					if err != nil {
						return err
					}
					fhKey = k
				}
			}

			prof.BaseURL = strings.TrimSpace(baseURL)
			prof.FlowHuntURL = strings.TrimSpace(fhURL)
			prof.FlowID = strings.TrimSpace(flowID)
			if token != "" {
				prof.Token = strings.TrimSpace(token)
			}
			if fhKey != "" {
				prof.FlowHuntKey = strings.TrimSpace(fhKey)
			}

			if cfg.Profiles == nil {
				cfg.Profiles = map[string]profile{}
			}
			cfg.Profiles[active] = prof
			if cfg.CurrentProfile == "" || *profileName != "" {
				cfg.CurrentProfile = active
			}

			if err := saveConfig(cfg, cfgPath); err != nil {
				return err
			}
			fmt.Printf("%s Initialized profile '%s' at %s\n", ui.ok("[OK]"), active, cfgPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", "Server base URL")
	cmd.Flags().StringVar(&token, "token", "", "Server token")
	cmd.Flags().StringVar(&fhURL, "flowhunt-url", "", "FlowHunt base URL")
	cmd.Flags().StringVar(&fhKey, "flowhunt-key", "", "FlowHunt API key")
	cmd.Flags().StringVar(&flowID, "flow", "", "Default flow id")
	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "Disable interactive prompts")
	return cmd
}

func authCmd(profileName *string, ui *ui) *cobra.Command {
	auth := &cobra.Command{
		Use:   "auth",
		Short: "Manage stored credentials",
	}

	var (
		token string
		fhKey string
		admin bool
	)

	set := &cobra.Command{
		Use:   "set",
		Short: "Store tokens in config",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" && fhKey == "" && !cmd.Flags().Changed("admin") {
				return errors.New("provide --token and/or --flowhunt-key (or --admin)")
			}
			cfg, cfgPath, err := loadConfig()
			if err != nil {
				return err
			}
			active := resolveProfileName(*profileName, cfg)
			prof := cfg.Profiles[active]
			if token != "" {
				prof.Token = strings.TrimSpace(token)
			}
			if fhKey != "" {
				prof.FlowHuntKey = strings.TrimSpace(fhKey)
			}
			if cmd.Flags().Changed("admin") {
				prof.Admin = admin
			}
			if cfg.Profiles == nil {
				cfg.Profiles = map[string]profile{}
			}
			cfg.Profiles[active] = prof
			if cfg.CurrentProfile == "" || *profileName != "" {
				cfg.CurrentProfile = active
			}
			if err := saveConfig(cfg, cfgPath); err != nil {
				return err
			}
			fmt.Printf("%s Credentials updated for '%s'\n", ui.ok("[OK]"), active)
			return nil
		},
	}
	set.Flags().StringVar(&token, "token", "", "Server token")
	set.Flags().StringVar(&fhKey, "flowhunt-key", "", "FlowHunt API key")
	set.Flags().BoolVar(&admin, "admin", false, "Set admin for profile")

	show := &cobra.Command{
		Use:   "show",
		Short: "Show stored credentials (masked)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			active := resolveProfileName(*profileName, cfg)
			prof := cfg.Profiles[active]
			fmt.Printf("%s Profile: %s\n", ui.title("flowbatch"), active)
			fmt.Printf("%s Base URL:     %s\n", ui.info("•"), emptyOr(prof.BaseURL, "<unset>"))
			fmt.Printf("%s FlowHunt URL: %s\n", ui.info("•"), emptyOr(prof.FlowHuntURL, "<unset>"))
			fmt.Printf("%s Flow ID:      %s\n", ui.info("•"), emptyOr(prof.FlowID, "<unset>"))
			fmt.Printf("%s Token:        %s\n", ui.info("•"), maskToken(prof.Token))
			fmt.Printf("%s API Key:      %s\n", ui.info("•"), maskToken(prof.FlowHuntKey))
			fmt.Printf("%s Admin:        %v\n", ui.info("•"), prof.Admin)
			return nil
		},
	}

	clear := &cobra.Command{
		Use:   "clear",
		Short: "Clear stored tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, cfgPath, err := loadConfig()
			if err != nil {
				return err
			}
			active := resolveProfileName(*profileName, cfg)
			prof := cfg.Profiles[active]
			prof.Token = ""
			prof.FlowHuntKey = ""
			cfg.Profiles[active] = prof
			if err := saveConfig(cfg, cfgPath); err != nil {
				return err
			}
			fmt.Printf("%s Tokens cleared for '%s'\n", ui.ok("[OK]"), active)
			return nil
		},
	}

	auth.AddCommand(set, show, clear)
	return auth
}

func batchCmd(baseURL, token *string, admin *bool, profileName *string, ui *ui) *cobra.Command {
	batch := &cobra.Command{
		Use:   "batch",
		Short: "Batch operations against the server",
	}

	var (
		csvPath     string
		flowID      string
		workspaceID string
		parallelism int
		singleton   bool
		outputDir   string
		watch       bool
	)

	create := &cobra.Command{
		Use:     "create",
		Short:   "Create a batch from a CSV file",
		Example: "flowbatch batch create --csv questions.csv --flow f-123 --parallelism 5",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(csvPath) == "" {
				return errors.New("csv file is required")
			}
			flow := resolveFlow(flowID, workspaceID, *profileName)
			if flow.FlowID == "" {
				return errors.New("flow id is required (set --flow or run `flowbatch init`)")
			}
			f, err := os.Open(csvPath)
			if err != nil {
				return err
			}
			defer f.Close()

			c := newClient(*baseURL, *token, *admin)
			q := url.Values{}
			q.Set("flowId", flow.FlowID)
			if flow.WorkspaceID != "" {
				q.Set("workspaceId", flow.WorkspaceID)
			}
			if parallelism > 0 {
				q.Set("parallelism", fmt.Sprint(parallelism))
			}
			if singleton {
				q.Set("singleton", "true")
			}
			if outputDir != "" {
				q.Set("writeOutput", "true")
				q.Set("outputDir", outputDir)
			}

			spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond)
			spin.Suffix = " Uploading CSV..."
			spin.Start()
			status, resp, err := c.upload("/v1/flowbatch/batches/import?"+q.Encode(), "text/csv", f)
			spin.Stop()
			if err != nil {
				return err
			}
			if status >= 300 {
				return fmt.Errorf("error (%d): %s", status, string(resp))
			}
			var out struct {
				Batch    domain.BatchView `json:"batch"`
				Imported int              `json:"imported"`
				Skipped  int              `json:"skipped"`
			}
			if err := json.Unmarshal(resp, &out); err != nil {
				fmt.Println(string(resp))
				return nil
			}
			fmt.Printf("%s Batch created: %s (%d tasks, %d skipped)\n", ui.ok("[OK]"), out.Batch.ID, out.Imported, out.Skipped)
			return nil
		},
	}
	create.Flags().StringVar(&csvPath, "csv", "", "CSV file: input[,filename] per row")
	create.Flags().StringVar(&flowID, "flow", "", "Flow id")
	create.Flags().StringVar(&workspaceID, "workspace", "", "Workspace id")
	create.Flags().IntVar(&parallelism, "parallelism", 0, "Tasks dispatched per slice")
	create.Flags().BoolVar(&singleton, "singleton", false, "Use singleton invocations")
	create.Flags().StringVar(&outputDir, "output-dir", "", "Write results to this directory on the server")

	start := &cobra.Command{
		Use:   "start <id>",
		Short: "Start a batch run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			c := newClient(*baseURL, *token, *admin)
			status, resp, err := c.request("POST", "/v1/flowbatch/batches/"+url.PathEscape(id)+"/start", nil)
			if err != nil {
				return err
			}
			if status >= 300 {
				return fmt.Errorf("error (%d): %s", status, string(resp))
			}
			fmt.Printf("%s Batch started: %s\n", ui.ok("[OK]"), id)
			if watch {
				return watchBatch(c, id, ui)
			}
			return nil
		},
	}
	start.Flags().BoolVar(&watch, "watch", false, "Watch progress until the batch finishes")

	stop := &cobra.Command{
		Use:   "stop <id>",
		Short: "Stop a running batch after the current slice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(*baseURL, *token, *admin)
			status, resp, err := c.request("POST", "/v1/flowbatch/batches/"+url.PathEscape(args[0])+"/stop", nil)
			if err != nil {
				return err
			}
			if status >= 300 {
				return fmt.Errorf("error (%d): %s", status, string(resp))
			}
			fmt.Printf("%s Stop requested\n", ui.ok("[OK]"))
			return nil
		},
	}

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Get a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(*baseURL, *token, *admin)
			status, resp, err := c.request("GET", "/v1/flowbatch/batches/"+url.PathEscape(args[0]), nil)
			if err != nil {
				return err
			}
			if status >= 300 {
				return fmt.Errorf("error (%d): %s", status, string(resp))
			}
			fmt.Println(string(resp))
			return nil
		},
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List batches, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(*baseURL, *token, *admin)
			path := "/v1/flowbatch/batches"
			if limit > 0 {
				path += "?limit=" + fmt.Sprint(limit)
			}
			status, resp, err := c.request("GET", path, nil)
			if err != nil {
				return err
			}
			if status >= 300 {
				return fmt.Errorf("error (%d): %s", status, string(resp))
			}
			var out struct {
				Batches []domain.BatchView `json:"batches"`
			}
			if err := json.Unmarshal(resp, &out); err != nil {
				fmt.Println(string(resp))
				return nil
			}
			for _, b := range out.Batches {
				fmt.Printf("%s  %-10s  %d/%d done  %s\n",
					b.ID, statusColored(ui, b.Status), b.Stats.Done, b.Stats.Total,
					ui.dim(b.CreatedAt.Format(time.RFC3339)))
			}
			return nil
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "Max batches to list")

	var dir string
	outputs := &cobra.Command{
		Use:   "outputs <id>",
		Short: "Write completed task results to files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(*baseURL, *token, *admin)
			var body any
			if dir != "" {
				body = map[string]string{"directory": dir}
			}
			status, resp, err := c.request("POST", "/v1/flowbatch/batches/"+url.PathEscape(args[0])+"/outputs", body)
			if err != nil {
				return err
			}
			if status >= 300 {
				return fmt.Errorf("error (%d): %s", status, string(resp))
			}
			var out struct {
				Written int `json:"written"`
			}
			_ = json.Unmarshal(resp, &out)
			fmt.Printf("%s %d files written\n", ui.ok("[OK]"), out.Written)
			return nil
		},
	}
	outputs.Flags().StringVar(&dir, "dir", "", "Output directory (defaults to the batch config)")

	retry := &cobra.Command{
		Use:   "retry <batch-id> <task-id>",
		Short: "Retry a terminal task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(*baseURL, *token, *admin)
			path := "/v1/flowbatch/batches/" + url.PathEscape(args[0]) + "/tasks/" + url.PathEscape(args[1]) + "/retry"
			status, resp, err := c.request("POST", path, nil)
			if err != nil {
				return err
			}
			if status >= 300 {
				return fmt.Errorf("error (%d): %s", status, string(resp))
			}
			fmt.Printf("%s Retry queued\n", ui.ok("[OK]"))
			return nil
		},
	}

	batch.AddCommand(create, start, stop, get, list, outputs, retry)
	return batch
}

// runCmd executes a batch locally against the flow service, without a server.
func runCmd(profileName *string, ui *ui) *cobra.Command {
	var (
		csvPath     string
		flowID      string
		workspaceID string
		parallelism int
		singleton   bool
		outputDir   string
		store       string
		redisAddr   string
		fhURL       string
		fhKey       string
	)
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run a batch locally (no server)",
		Example: "flowbatch run --csv questions.csv --flow f-123 --output-dir ./results",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(csvPath) == "" {
				return errors.New("csv file is required")
			}
			cfg, _, _ := loadConfig()
			prof := cfg.Profiles[resolveProfileName(*profileName, cfg)]
			flow := domain.FlowRef{
				FlowID:      firstNonEmpty(flowID, prof.FlowID),
				WorkspaceID: firstNonEmpty(workspaceID, prof.WorkspaceID),
			}
			if flow.FlowID == "" {
				return errors.New("flow id is required (set --flow or run `flowbatch init`)")
			}
			baseURL := firstNonEmpty(fhURL, prof.FlowHuntURL, os.Getenv("FLOWHUNT_BASE_URL"), defaultFlowHuntURL)
			apiKey := firstNonEmpty(fhKey, prof.FlowHuntKey, os.Getenv("FLOWHUNT_API_KEY"))
			if apiKey == "" {
				return errors.New("FlowHunt API key is required (set --flowhunt-key or run `flowbatch init`)")
			}

			f, err := os.Open(csvPath)
			if err != nil {
				return err
			}
			res, err := importer.Read(f, importer.Options{
				DetectHeader:    true,
				RequireFilename: outputDir != "",
			})
			f.Close()
			if err != nil {
				return err
			}
			if res.Skipped > 0 {
				fmt.Printf("%s %d rows skipped\n", ui.warn("[WARN]"), res.Skipped)
			}

			batch := domain.NewBatch(flow, domain.BatchConfig{
				Parallelism:       parallelism,
				SingletonMode:     singleton,
				WriteOutputToFile: outputDir != "",
				OutputDirectory:   outputDir,
			}, res.Tasks)

			plugin, err := newStore(store, redisAddr)
			if err != nil {
				return err
			}
			defer plugin.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			invoker := flowhunt.NewClient(baseURL, apiKey)
			exec := executor.New(invoker, executor.Config{
				Events: &runEvents{ui: ui, store: plugin.BatchStorage()},
			})
			go func() {
				<-ctx.Done()
				exec.Stop()
			}()

			stats, err := exec.Run(ctx, batch)
			if err != nil {
				return err
			}

			fmt.Printf("%s %d done, %d failed, %.2f credits\n",
				ui.ok("[DONE]"), stats.Done, stats.Failed, stats.Credits)

			if outputDir != "" {
				written, werr := output.WriteAllCompleted(batch.Snapshot().Tasks, outputDir)
				if werr != nil {
					fmt.Printf("%s some outputs failed: %v\n", ui.warn("[WARN]"), werr)
				}
				fmt.Printf("%s %d files written to %s\n", ui.ok("[OK]"), written, outputDir)
			}
			if stats.Failed > 0 {
				return fmt.Errorf("%d tasks failed", stats.Failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV file: input[,filename] per row")
	cmd.Flags().StringVar(&flowID, "flow", "", "Flow id")
	cmd.Flags().StringVar(&workspaceID, "workspace", "", "Workspace id")
	cmd.Flags().IntVar(&parallelism, "parallelism", 0, "Tasks dispatched per slice")
	cmd.Flags().BoolVar(&singleton, "singleton", false, "Use singleton invocations")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Write results to this directory")
	cmd.Flags().StringVar(&store, "store", "memory", "Batch state store: memory|redis")
	cmd.Flags().StringVar(&redisAddr, "redis-addr", "localhost:6379", "Redis address for --store redis")
	cmd.Flags().StringVar(&fhURL, "flowhunt-url", "", "FlowHunt base URL")
	cmd.Flags().StringVar(&fhKey, "flowhunt-key", "", "FlowHunt API key")
	return cmd
}

// invokeCmd runs a single flow invocation and waits for the result.
func invokeCmd(profileName *string, ui *ui) *cobra.Command {
	var (
		input       string
		flowID      string
		workspaceID string
		singleton   bool
		fhURL       string
		fhKey       string
		raw         bool
	)
	cmd := &cobra.Command{
		Use:     "invoke",
		Short:   "Invoke a flow once and print the answer",
		Example: "flowbatch invoke --flow f-123 --input \"what is the answer\"",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(input) == "" {
				return errors.New("input text is required")
			}
			cfg, _, _ := loadConfig()
			prof := cfg.Profiles[resolveProfileName(*profileName, cfg)]
			flow := domain.FlowRef{
				FlowID:      firstNonEmpty(flowID, prof.FlowID),
				WorkspaceID: firstNonEmpty(workspaceID, prof.WorkspaceID),
			}
			if flow.FlowID == "" {
				return errors.New("flow id is required (set --flow or run `flowbatch init`)")
			}
			baseURL := firstNonEmpty(fhURL, prof.FlowHuntURL, os.Getenv("FLOWHUNT_BASE_URL"), defaultFlowHuntURL)
			apiKey := firstNonEmpty(fhKey, prof.FlowHuntKey, os.Getenv("FLOWHUNT_API_KEY"))
			if apiKey == "" {
				return errors.New("FlowHunt API key is required (set --flowhunt-key or run `flowbatch init`)")
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			task := domain.NewTask(input, "")
			batch := domain.NewBatch(flow, domain.BatchConfig{
				Parallelism:   1,
				SingletonMode: singleton,
			}, []*domain.Task{task})

			exec := executor.New(flowhunt.NewClient(baseURL, apiKey), executor.Config{})
			spin := spinner.New(spinner.CharSets[14], 120*time.Millisecond)
			spin.Suffix = " Waiting for the flow..."
			spin.Start()
			_, err := exec.Run(ctx, batch)
			spin.Stop()
			if err != nil {
				return err
			}

			v := task.Snapshot()
			if v.Status == domain.StatusFailed {
				return fmt.Errorf("invocation failed: %s", v.Error)
			}
			if raw {
				fmt.Println(string(v.RawOutput))
			} else {
				fmt.Println(v.Result)
			}
			if v.Credits > 0 {
				fmt.Fprintf(os.Stderr, "%s %.2f credits\n", ui.dim("spent:"), v.Credits)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "Input text for the flow")
	cmd.Flags().StringVar(&flowID, "flow", "", "Flow id")
	cmd.Flags().StringVar(&workspaceID, "workspace", "", "Workspace id")
	cmd.Flags().BoolVar(&singleton, "singleton", false, "Use the singleton invocation endpoint")
	cmd.Flags().StringVar(&fhURL, "flowhunt-url", "", "FlowHunt base URL")
	cmd.Flags().StringVar(&fhKey, "flowhunt-key", "", "FlowHunt API key")
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the raw response JSON")
	return cmd
}

func validateCmd(ui *ui) *cobra.Command {
	var requireFilename bool
	cmd := &cobra.Command{
		Use:   "validate <csv>",
		Short: "Validate a CSV task list without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			res, err := importer.Read(f, importer.Options{
				DetectHeader:    true,
				RequireFilename: requireFilename,
			})
			if err != nil {
				return err
			}
			fmt.Printf("%s %d tasks, %d rows skipped\n", ui.ok("[OK]"), len(res.Tasks), res.Skipped)
			return nil
		},
	}
	cmd.Flags().BoolVar(&requireFilename, "require-filename", false, "Reject rows without an output filename")
	return cmd
}

// runEvents drives the progress bar and snapshots batch state at slice
// boundaries during a local run.
type runEvents struct {
	ui    *ui
	store persistence.BatchStorage
	bar   *progressbar.ProgressBar
}

func (e *runEvents) BatchStarted(batch *domain.Batch) {
	e.bar = progressbar.NewOptions(len(batch.Tasks),
		progressbar.OptionSetDescription("Running batch"),
		progressbar.OptionSetWidth(18),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
	e.save(batch)
}

func (e *runEvents) TaskStarted(*domain.Batch, *domain.Task) {}

func (e *runEvents) TaskFinalized(_ *domain.Batch, task *domain.Task) {
	if e.bar != nil {
		_ = e.bar.Add(1)
	}
	if v := task.Snapshot(); v.Status == domain.StatusFailed {
		fmt.Printf("\n%s task %s: %s\n", e.ui.err("[FAILED]"), v.ID, v.Error)
	}
}

func (e *runEvents) SliceCompleted(batch *domain.Batch, _ int, _ domain.BatchStats) {
	e.save(batch)
}

func (e *runEvents) BatchFinished(batch *domain.Batch, _ domain.BatchStats) {
	e.save(batch)
}

func (e *runEvents) save(batch *domain.Batch) {
	if e.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = e.store.Save(ctx, batch.Snapshot())
}

func newStore(kind, redisAddr string) (persistence.PluginPersistence, error) {
	switch kind {
	case "", "memory":
		return persistence.NewPersistence(
			persistence.ProviderConfig{Type: "memory", Config: json.RawMessage(`{}`)},
			persistence.PluginConfig{},
		)
	case "redis":
		raw, _ := json.Marshal(map[string]string{"addr": redisAddr})
		return persistence.NewPersistence(
			persistence.ProviderConfig{Type: "redis", Config: raw},
			persistence.PluginConfig{},
		)
	default:
		return nil, fmt.Errorf("unknown store %q (memory|redis)", kind)
	}
}

func watchBatch(c *client, id string, ui *ui) error {
	var bar *progressbar.ProgressBar
	done := 0
	for {
		status, resp, err := c.request("GET", "/v1/flowbatch/batches/"+url.PathEscape(id), nil)
		if err != nil {
			return err
		}
		if status >= 300 {
			return fmt.Errorf("error (%d): %s", status, string(resp))
		}
		var view domain.BatchView
		if err := json.Unmarshal(resp, &view); err != nil {
			return err
		}
		if bar == nil {
			bar = progressbar.NewOptions(view.Stats.Total,
				progressbar.OptionSetDescription("Running batch"),
				progressbar.OptionSetWidth(18),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
			)
		}
		terminal := view.Stats.Done + view.Stats.Failed
		if terminal > done {
			_ = bar.Add(terminal - done)
			done = terminal
		}
		if view.Status != domain.BatchRunning {
			fmt.Printf("%s %s: %d done, %d failed, %.2f credits\n",
				ui.ok("[DONE]"), view.Status, view.Stats.Done, view.Stats.Failed, view.Stats.Credits)
			return nil
		}
		time.Sleep(time.Second)
	}
}

func resolveFlow(flowID, workspaceID, profileName string) domain.FlowRef {
	cfg, _, _ := loadConfig()
	prof := cfg.Profiles[resolveProfileName(profileName, cfg)]
	return domain.FlowRef{
		FlowID:      firstNonEmpty(flowID, prof.FlowID),
		WorkspaceID: firstNonEmpty(workspaceID, prof.WorkspaceID),
	}
}

func statusColored(ui *ui, s domain.BatchStatus) string {
	switch s {
	case domain.BatchFinished:
		return ui.ok(string(s))
	case domain.BatchRunning:
		return ui.info(string(s))
	case domain.BatchStopped:
		return ui.warn(string(s))
	default:
		return ui.dim(string(s))
	}
}

func newClient(baseURL, token string, admin bool) *client {
	return &client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		admin:      admin,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getenvBool(k string, def bool) bool {
	v := strings.TrimSpace(strings.ToLower(os.Getenv(k)))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes"
}

func isLocalURL(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	return host == "localhost" || host == "127.0.0.1"
}

func helpTemplate(ui *ui) string {
	title := ui.title("flowbatch")
	return fmt.Sprintf(`%s - CLI for FlowBatch

Usage:
  {{.UseLine}}

Commands:
{{range .Commands}}{{if (or .IsAvailableCommand .IsAdditionalHelpTopicCommand)}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}

Flags:
  {{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}

Global Flags:
  {{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}

Config:
  %s

Examples:
  flowbatch init
  flowbatch validate questions.csv
  flowbatch invoke --flow f-123 --input "what is the answer"
  flowbatch run --csv questions.csv --flow f-123 --output-dir ./results
  flowbatch batch create --csv questions.csv --flow f-123 --parallelism 5
  flowbatch batch start <id> --watch

`, title, configPath())
}

func configPath() string {
	if v := strings.TrimSpace(os.Getenv("FLOWBATCH_CONFIG_DIR")); v != "" {
		return filepath.Join(v, "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.yaml"
	}
	return filepath.Join(home, ".flowbatch", "config.yaml")
}

func promptSecret(label string) (string, error) {
	fmt.Printf("%s: ", label)
	b, err := termReadPassword()
	fmt.Println()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}

func termReadPassword() ([]byte, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		return []byte(strings.TrimSpace(line)), err
	}
	return term.ReadPassword(fd)
}

func loadConfig() (cliConfig, string, error) {
	path := configPath()
	var cfg cliConfig
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cliConfig{Profiles: map[string]profile{}}, path, nil
		}
		return cfg, path, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, path, err
	}
	if cfg.Profiles == nil {
		cfg.Profiles = map[string]profile{}
	}
	return cfg, path, nil
}

func saveConfig(cfg cliConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func resolveProfileName(flag string, cfg cliConfig) string {
	if strings.TrimSpace(flag) != "" {
		return strings.TrimSpace(flag)
	}
	if v := strings.TrimSpace(os.Getenv("FLOWBATCH_PROFILE")); v != "" {
		return v
	}
	if cfg.CurrentProfile != "" {
		return cfg.CurrentProfile
	}
	return "default"
}

func prompt(r *bufio.Reader, label, def string) string {
	if def != "" {
		fmt.Printf("%s [%s]: ", label, def)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, _ := r.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}

func maskToken(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "<unset>"
	}
	if len(v) <= 8 {
		return "****"
	}
	return v[:4] + "..." + v[len(v)-4:]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func emptyOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
