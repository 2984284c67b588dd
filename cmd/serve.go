/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/valpere/dubtran/internal/web"
)

var serveCheckLanguage bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the interactive web session",
	Long: `Serve a small web UI to upload a JSON batch, preview it, translate it
and download the results as JSON, CSV or XLSX.

The session keeps the last uploaded input and the last translation. Only one
batch runs at a time; a second request while one is running gets HTTP 409.

A JSON API is available at POST /api/translate and GET /api/stats.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		db, err := openStore(cfg.DBPath)
		if err != nil {
			return err
		}
		if db != nil {
			defer db.Close()
		}

		p, err := buildPipeline(ctx, cfg, db, serveCheckLanguage, logger)
		if err != nil {
			return err
		}

		if logger.GetLevel() > zerolog.DebugLevel {
			gin.SetMode(gin.ReleaseMode)
		}

		srv, err := web.New(p, logger)
		if err != nil {
			return err
		}

		return srv.ListenAndServe(ctx, cfg.Listen)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen", "l", "127.0.0.1:8501", "Address to listen on")
	serveCmd.Flags().BoolVar(&serveCheckLanguage, "check-language", true, "Warn about input items that do not look like English")

	bindFlags(v, serveCmd.Flags(), map[string]string{"listen": "listen"})
}
