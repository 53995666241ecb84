// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/CompanionHaven/cmd/haven/config"
	"github.com/AleutianAI/CompanionHaven/pkg/logging"
)

var (
	// --- Global flags ---
	configPath string
	logLevel   string

	// --- serve flags ---
	servePort    int
	serveBackend []string

	// --- chat flags ---
	chatServer    string
	chatCompanion string
	chatMood      string
	chatSession   string
	chatResume    bool

	// cfg and logger are set by the root PersistentPreRunE.
	cfg    config.HavenConfig
	logger *logging.Logger

	rootCmd = &cobra.Command{
		Use:          "haven",
		Short:        "Companion chat server and terminal client",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := loadConfig()
			if err != nil {
				return err
			}
			cfg = loaded

			level, err := logging.ParseLevel(firstNonEmpty(logLevel, cfg.Logging.Level))
			if err != nil {
				return err
			}
			logger = logging.New(logging.Config{
				Level:   level,
				LogDir:  cfg.Logging.Dir,
				Service: cmd.Name(),
				JSON:    cfg.Logging.JSON,
			})
			logger.SetDefault()
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Close()
			}
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the companion chat HTTP server",
		Long: `Runs the chat server until interrupted. Replies come from the
configured LLM backends in order and fall back to the built-in
personality engine when none answers.`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	chatCmd = &cobra.Command{
		Use:   "chat",
		Short: "Chat with a companion from the terminal",
		Long: `Opens an interactive chat against a running haven server.
Press Ctrl-C during a reply to abandon it, or Ctrl-D to quit.`,
		Args: cobra.NoArgs,
		RunE: runChat,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the haven version",
		Args:  cobra.NoArgs,
		// Overrides the root hook: printing the version needs no config.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "haven %s (%s)\n", version, commit)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file (default ~/.haven/haven.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Log level: debug, info, warn or error (overrides the config file)")

	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Listen port (overrides server.port)")
	serveCmd.Flags().StringSliceVar(&serveBackend, "backend", nil,
		"LLM backends to try in order, e.g. --backend anthropic,groq")

	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVar(&chatServer, "server", "", "Server URL (overrides client.server_url)")
	chatCmd.Flags().StringVarP(&chatCompanion, "companion", "c", "", "Companion id (overrides client.companion)")
	chatCmd.Flags().StringVarP(&chatMood, "mood", "m", "", "Mood: calm, romantic, playful or deep")
	chatCmd.Flags().StringVar(&chatSession, "session", "", "Resume this session id instead of starting a new one")
	chatCmd.Flags().BoolVar(&chatResume, "resume", false, "Load the stored conversation before chatting")

	rootCmd.AddCommand(versionCmd)
	rootCmd.Version = version
}

func loadConfig() (config.HavenConfig, error) {
	if configPath != "" {
		return config.LoadFrom(configPath)
	}
	if err := config.Load(); err != nil {
		return config.HavenConfig{}, err
	}
	return config.Global, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
