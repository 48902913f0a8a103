package main

import (
	"github.com/spf13/cobra"

	"github.com/tturner/mcgw/internal/gateway"
)

type serveFlags struct {
	plc     plcFlags
	listen  string
	persist bool
	noProm  bool
}

func newServeCmd() *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		Long: `Serve device reads and file access over HTTP. Every request opens its
own PLC connection; ip and port query parameters retarget a single request.

Routes:
  POST /api/read                          {"device","addr","length","ip","port"}
  GET  /api/read/{device}/{addr}/{length}
  GET  /api/fileinfo/{drive}?start_no=&count=&path=
  GET  /api/search/{drive}?name=&path=
  GET  /api/file/{drive}?name=&chunk=&persist=&format=raw
  GET  /api/records, /api/records/{id}    (with a store)
  GET  /metrics                           (Prometheus text format)

Press Ctrl+C to stop the gateway gracefully.`,
		Example: `  mcgw serve --host 192.168.3.39
  mcgw serve --listen 0.0.0.0:8001 --persist --config ./mcgw.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			return runServe(cmd, flags)
		},
	}

	registerPLCFlags(cmd, &flags.plc)
	cmd.Flags().StringVar(&flags.listen, "listen", "", "Listen address (overrides gateway.listen)")
	cmd.Flags().BoolVar(&flags.persist, "persist", false, "Store every fetched file (overrides gateway.persist)")
	cmd.Flags().BoolVar(&flags.noProm, "no-metrics", false, "Do not serve /metrics")
	return cmd
}

func runServe(cmd *cobra.Command, flags *serveFlags) error {
	ctx := cmd.Context()
	e, err := setup(ctx, &flags.plc, setupOptions{openStore: true, prometheus: !flags.noProm})
	if err != nil {
		return err
	}
	defer e.close()

	gwCfg := e.cfg.Gateway
	if flags.listen != "" {
		gwCfg.Listen = flags.listen
	}
	if flags.persist {
		gwCfg.Persist = true
	}

	srv, err := gateway.New(gateway.Options{
		Gateway:    gwCfg,
		Files:      e.cfg.Files,
		Host:       e.cfg.PLC.Host,
		Port:       e.cfg.PLC.Port,
		Dial:       gateway.PLCDialFunc(e.dialer),
		Layout:     e.layout,
		Store:      e.store,
		Prometheus: e.prom,
		Logger:     e.logger,
	})
	if err != nil {
		return err
	}
	return srv.ListenAndServe(ctx)
}
