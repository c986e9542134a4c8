package main

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/summitlabs/summit-api/internal/store"
)

func newHabitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "habit",
		Short: "Manage habits",
	}

	cmd.AddCommand(newHabitAddCmd())

	return cmd
}

func newHabitAddCmd() *cobra.Command {
	var (
		flagUser string
		flagID   string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a habit owned by a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := uuid.Parse(flagUser)
			if err != nil {
				return fmt.Errorf("invalid --user: %w", err)
			}

			habitID := flagID
			if habitID == "" {
				habitID = uuid.NewString()
			}

			logger := buildLogger(loadedCfg)

			st, err := store.Open(cmd.Context(), loadedCfg.Database.Path, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.PutHabit(cmd.Context(), habitID, owner, args[0]); err != nil {
				return err
			}

			fmt.Printf("Habit: %s\n", habitID)
			fmt.Printf("Owner: %s\n", owner)

			return nil
		},
	}

	cmd.Flags().StringVar(&flagUser, "user", "", "owning user id (UUID)")
	cmd.Flags().StringVar(&flagID, "id", "", "habit id; a fresh UUID is generated when omitted")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}
