package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gdscnexus/nexus-chat/internal/app"
	"github.com/gdscnexus/nexus-chat/internal/config"
	"github.com/gdscnexus/nexus-chat/internal/store"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage rooms and roles directly in the store",
	}
	cmd.AddCommand(newCreateRoomCmd(), newSetRoleCmd())
	return cmd
}

func newCreateRoomCmd() *cobra.Command {
	var (
		name       string
		visibility string
		group      bool
		teamID     string
		fieldID    string
		members    []string
	)

	cmd := &cobra.Command{
		Use:   "create-room",
		Short: "Create a chat room",
		RunE: func(cmd *cobra.Command, _ []string) error {
			room := &store.Room{
				Name:       strings.TrimSpace(name),
				Visibility: store.Visibility(strings.ToUpper(visibility)),
				IsGroup:    group,
			}
			if room.Name == "" {
				return errors.New("--name is required")
			}
			if !room.Visibility.Valid() {
				return fmt.Errorf("invalid visibility %q", visibility)
			}
			if teamID != "" {
				room.TeamID = &teamID
			}
			if fieldID != "" {
				room.FieldID = &fieldID
			}

			cfg, logger, err := loadConfig(config.Config{})
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			st, err := app.OpenStore(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			if err := st.CreateRoom(ctx, room); err != nil {
				return fmt.Errorf("create room: %w", err)
			}
			for _, userID := range members {
				if err := st.AddMember(ctx, userID, room.ID); err != nil {
					return fmt.Errorf("add member %s: %w", userID, err)
				}
			}

			logger.Info().Str("room_id", room.ID).Str("room_name", room.Name).Int("members", len(members)).Msg("room created")
			fmt.Fprintln(cmd.OutOrStdout(), room.ID)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&name, "name", "", "room name")
	f.StringVar(&visibility, "visibility", string(store.VisibilityPublic), "PUBLIC, MEMBERS_ONLY, LEADS_ONLY or HIDDEN")
	f.BoolVar(&group, "group", true, "group room")
	f.StringVar(&teamID, "team", "", "team id scope")
	f.StringVar(&fieldID, "field", "", "field id scope")
	f.StringSliceVar(&members, "member", nil, "user id to add as explicit member (repeatable)")
	return cmd
}

func newSetRoleCmd() *cobra.Command {
	var email, role string

	cmd := &cobra.Command{
		Use:   "set-role",
		Short: "Change the role of a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := store.Role(strings.ToUpper(role))
			if !r.Valid() {
				return fmt.Errorf("invalid role %q", role)
			}

			cfg, logger, err := loadConfig(config.Config{})
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			st, err := app.OpenStore(ctx, cfg.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			user, err := st.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
			if err != nil {
				return fmt.Errorf("find user %s: %w", email, err)
			}
			if err := st.UpdateUserRole(ctx, user.ID, r); err != nil {
				return fmt.Errorf("update role: %w", err)
			}

			logger.Info().Str("user_id", user.ID).Str("role", string(r)).Msg("role updated")
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&email, "email", "", "user email")
	f.StringVar(&role, "role", "", "USER, MEMBER, LEAD or ADMIN")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}
