package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fablecast/entitlement/internal/app/service/unlock"
	"github.com/fablecast/entitlement/internal/app/service/wallet"
	"github.com/fablecast/entitlement/internal/platform/lock"
	"github.com/fablecast/entitlement/pkg/tool"
)

func newUnlocksCommand(configPath *string) *cobra.Command {
	var batch int
	cmd := &cobra.Command{
		Use:   "unlocks",
		Short: "Chapter unlock maintenance",
	}
	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "Promote every due time unlock once",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(*configPath)
			if err != nil {
				return err
			}
			defer env.Close()
			if batch <= 0 {
				batch = env.Cfg.Unlock.SweepBatch
			}
			wl := wallet.New(env.DB, env.Log)
			svc := unlock.New(env.DB, wl, lock.NewLocal(env.Cfg.Lock.Wait), env.Cfg, env.Log)

			var total int64
			for {
				n, err := svc.PromoteDue(cmd.Context(), batch)
				total += n
				if err != nil {
					return fmt.Errorf("sweep failed after %d rows: %w", total, err)
				}
				if n == 0 || n < int64(batch) {
					break
				}
			}
			cmd.Printf("promoted=%d\n", total)
			return nil
		},
	}
	sweep.Flags().IntVarP(&batch, "batch", "b", 0, "Rows per batch; defaults to unlock.sweep_batch")
	cmd.AddCommand(sweep)
	return cmd
}

func newWalletCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Karma wallet tools",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "reconcile <user_id>...",
		Short: "Compare stored balances with the Karma ledger",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(*configPath)
			if err != nil {
				return err
			}
			defer env.Close()
			wl := wallet.New(env.DB, env.Log)

			enc := json.NewEncoder(cmd.OutOrStdout())
			drift := 0
			for _, a := range args {
				userID, ok := tool.ParseID(a)
				if !ok {
					return fmt.Errorf("invalid user id: %q", a)
				}
				rec, err := wl.Reconcile(cmd.Context(), userID)
				if err != nil {
					return err
				}
				if !rec.Consistent {
					drift++
				}
				if err := enc.Encode(rec); err != nil {
					return err
				}
			}
			if drift > 0 {
				return fmt.Errorf("%d wallet(s) out of balance", drift)
			}
			return nil
		},
	})
	return cmd
}
