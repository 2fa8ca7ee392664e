package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"chartengine/internal/model"
	redisstore "chartengine/internal/store/redis"
)

func paramsCmd() *cobra.Command {
	var (
		emaPeriod int
		rsiPeriod int
		redisAddr string
		password  string
		channel   string
	)

	cmd := &cobra.Command{
		Use:   "params",
		Short: "Publish an EMA/RSI period change to running chart servers",
		Long: `Publish {"emaPeriod":..,"rsiPeriod":..} on the parameter channel. Every
chart server subscribed to it recomputes and pushes the new chart.

Example:
  indcalc params --ema 50
  indcalc params --rsi 21 --redis-addr redis:6379`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			u := model.ParamUpdate{EMAPeriod: emaPeriod, RSIPeriod: rsiPeriod}
			if u == (model.ParamUpdate{}) {
				return errors.New("nothing to publish: set --ema and/or --rsi")
			}
			u = u.Clamp()

			client, err := redisstore.Connect(redisstore.Config{Addr: redisAddr, Password: password})
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			if err := redisstore.PublishParams(ctx, client, channel, u); err != nil {
				return fmt.Errorf("publish: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published ema=%d rsi=%d on %s\n", u.EMAPeriod, u.RSIPeriod, channel)
			return nil
		},
	}

	cmd.Flags().IntVar(&emaPeriod, "ema", 0, "EMA period")
	cmd.Flags().IntVar(&rsiPeriod, "rsi", 0, "RSI period")
	cmd.Flags().StringVar(&redisAddr, "redis-addr", "localhost:6379", "Redis address")
	cmd.Flags().StringVar(&password, "redis-password", "", "Redis password")
	cmd.Flags().StringVar(&channel, "channel", redisstore.DefaultParamsChannel, "Parameter channel")

	return cmd
}
