package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pcconv-go/internal/config"
	"pcconv-go/pkg/token"
)

var tokenSubject string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a signed API token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Conf
		tok, err := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.TokenExpireHours).GenerateToken(tokenSubject)
		if err != nil {
			return err
		}
		fmt.Println(tok)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVarP(&tokenSubject, "subject", "s", "ops", "token subject")
	rootCmd.AddCommand(tokenCmd)
}
