// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var deviceCmd = &cobra.Command{
	Use:   "device",
	Short: "Inspect and manage this daemon's device identity and allow-list",
}

var deviceShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the local device identity",
	Args:  cobra.NoArgs,
	RunE:  runDeviceShow,
}

var deviceListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the allow-list, one identity per line",
	Args:  cobra.NoArgs,
	RunE:  runDeviceList,
}

var deviceAllowCmd = &cobra.Command{
	Use:   "allow <id>",
	Short: "Add a device identity to the allow-list",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeviceAllow,
}

var deviceDisableCmd = &cobra.Command{
	Use:   "disable <id>",
	Short: "Remove a device identity from the allow-list",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeviceDisable,
}

func init() {
	deviceCmd.AddCommand(deviceShowCmd, deviceListCmd, deviceAllowCmd, deviceDisableCmd)
}

func runDeviceShow(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	store, err := openIdentityStore(cfg)
	if err != nil {
		return err
	}

	id, err := store.DeviceIdentity()
	if err != nil {
		return fmt.Errorf("read device identity: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

func runDeviceList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	allowed, err := openAllowlist(cfg)
	if err != nil {
		return err
	}

	for _, id := range allowed.List() {
		fmt.Fprintln(cmd.OutOrStdout(), id)
	}
	return nil
}

func runDeviceAllow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	allowed, err := openAllowlist(cfg)
	if err != nil {
		return err
	}

	added, err := allowed.Allow(args[0])
	if err != nil {
		return fmt.Errorf("allow device: %w", err)
	}

	if added {
		fmt.Fprintf(cmd.OutOrStdout(), "Added Device ID: %s\n", args[0])
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "The given Device ID has been allowed already")
	}
	return nil
}

func runDeviceDisable(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	allowed, err := openAllowlist(cfg)
	if err != nil {
		return err
	}

	removed, err := allowed.Disable(args[0])
	if err != nil {
		return fmt.Errorf("disable device: %w", err)
	}

	if removed {
		fmt.Fprintf(cmd.OutOrStdout(), "Removed Device ID: %s\n", args[0])
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "The given Device ID has not been allowed")
	}
	return nil
}
