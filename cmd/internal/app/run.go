package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// Serve builds the App and runs it until SIGINT or SIGTERM.
// It returns an error instead of calling os.Exit to keep defers effective.
//
// On SIGHUP, reload is called and the signing keys it returns replace the
// running ones. A nil reload disables this.
func Serve(cfg Config, log Logger, reload func() (Config, error)) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := New(ctx, cfg, log)
	if err != nil {
		return err
	}

	if reload != nil {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		go a.watchReload(ctx, hup, reload)
	}
	return a.Run(ctx)
}

// watchReload reloads the signing keys on every signal until ctx is done.
// A failed reload keeps the current keys.
func (a *App) watchReload(ctx context.Context, sig <-chan os.Signal, reload func() (Config, error)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			cfg, err := reload()
			if err == nil {
				err = a.ReloadKeys(cfg.Token)
			}
			if err != nil {
				a.log.Error("token.keys.reload.fail", "err", err)
			}
		}
	}
}
