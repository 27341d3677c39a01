package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

// registerForm collects the fields buildLambdaRequest needs, one per huh
// input, so a developer can register an application without hand-writing
// a curl invocation against /build/lambda.
type registerForm struct {
	gatewayURL  string
	appName     string
	framework   string
	projectPath string
	envVarsRaw  string
}

func newRegisterCommand() *cobra.Command {
	form := &registerForm{gatewayURL: "http://localhost:5500"}

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Interactively register an application with a running gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegisterForm(form)
		},
	}

	cmd.Flags().StringVar(&form.gatewayURL, "gateway-url", form.gatewayURL, "base URL of the running gateway")
	return cmd
}

func runRegisterForm(form *registerForm) error {
	huhForm := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Application name").Value(&form.appName),
			huh.NewSelect[string]().
				Title("Framework").
				Options(
					huh.NewOption("Next.js", "nextjs"),
					huh.NewOption("Vite", "vite"),
					huh.NewOption("React (CRA)", "react"),
				).
				Value(&form.framework),
			huh.NewInput().Title("Project path").Value(&form.projectPath),
			huh.NewInput().
				Title("Environment variables (KEY=VALUE, comma-separated)").
				Value(&form.envVarsRaw),
		),
	)

	if err := huhForm.Run(); err != nil {
		return fmt.Errorf("registration form canceled: %w", err)
	}

	return submitRegistration(form)
}

func submitRegistration(form *registerForm) error {
	envVars := parseEnvVars(form.envVarsRaw)

	payload, err := json.Marshal(map[string]any{
		"app_name":     form.appName,
		"framework":    form.framework,
		"project_path": form.projectPath,
		"env_vars":     envVars,
	})
	if err != nil {
		return fmt.Errorf("failed to encode registration payload: %w", err)
	}

	response, err := http.Post(form.gatewayURL+"/build/lambda", "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to reach gateway at %s: %w", form.gatewayURL, err)
	}
	defer response.Body.Close()

	var result struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.NewDecoder(response.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to decode gateway response: %w", err)
	}

	if !result.Success {
		return fmt.Errorf("registration failed: %s", result.Error)
	}

	fmt.Printf("registered %q, it will be reachable at /app/%s/ once warmed up\n", form.appName, form.appName)
	return nil
}

func parseEnvVars(raw string) map[string]string {
	envVars := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		envVars[key] = value
	}
	return envVars
}
