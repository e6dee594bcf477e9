package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/mastercactapus/gpnp/machine/controller"
)

func main() {
	log.SetFlags(log.Lshortfile)

	configFile := flag.String("config", "", "Config file (default ./gpnp.yaml if present).")
	addr := flag.String("addr", "", "Address to bind the gPNP server to (overrides config).")
	useSim := flag.Bool("sim", false, "Use the built-in simulated controller.")
	jobFile := flag.String("job", "", "Job description to load at startup.")
	listPorts := flag.Bool("list-ports", false, "List serial ports and exit.")
	flag.Parse()

	if *listPorts {
		ports, err := controller.ListPorts()
		if err != nil {
			log.Fatal(err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	cfg, err := LoadConfig(*configFile)
	if err != nil {
		log.Fatal(err)
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *useSim {
		cfg.Transport.Type = "sim"
	}

	r, err := newRig(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer r.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	// a failed connect is retried through /api/connect
	err = r.driver.Connect(ctx)
	if err != nil {
		log.Println("ERROR: connect:", err)
	}

	if *jobFile != "" {
		j, err := LoadJob(*jobFile)
		if err != nil {
			log.Fatal(err)
		}
		r.engine.Load(j)
	}

	api := newAPI(r, cfg.AlignTolerance)

	srv := &http.Server{
		Addr: cfg.Addr,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "*")
			log.Printf("%s %s - %s", req.Method, req.URL.Path, req.RemoteAddr)
			api.ServeHTTP(w, req)
		}),
	}
	go func() {
		<-ctx.Done()
		r.engine.Stop()
		api.Close()
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		srv.Shutdown(sctx)
	}()

	log.Println("Listening on", cfg.Addr)
	err = srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	r.engine.Wait()
}
