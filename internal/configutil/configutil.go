// Package configutil resolves settings that can arrive either as an explicit
// cobra flag or as a viper key (config file / SLACKPM_* env). An explicitly
// set flag wins; otherwise a set viper key; otherwise the flag default.
package configutil

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func FlagOrViperString(cmd *cobra.Command, flag, viperKey string) string {
	if flagChanged(cmd, flag) {
		if v, err := cmd.Flags().GetString(flag); err == nil {
			return v
		}
	}
	if viperKey != "" && viper.IsSet(viperKey) {
		return viper.GetString(viperKey)
	}
	if cmd != nil && flag != "" {
		if v, err := cmd.Flags().GetString(flag); err == nil {
			return v
		}
	}
	return ""
}

func FlagOrViperStringArray(cmd *cobra.Command, flag, viperKey string) []string {
	if flagChanged(cmd, flag) {
		if v, err := cmd.Flags().GetStringArray(flag); err == nil {
			return v
		}
	}
	if viperKey != "" && viper.IsSet(viperKey) {
		return viper.GetStringSlice(viperKey)
	}
	if cmd != nil && flag != "" {
		if v, err := cmd.Flags().GetStringArray(flag); err == nil {
			return v
		}
	}
	return nil
}

func FlagOrViperBool(cmd *cobra.Command, flag, viperKey string) bool {
	if flagChanged(cmd, flag) {
		if v, err := cmd.Flags().GetBool(flag); err == nil {
			return v
		}
	}
	if viperKey != "" && viper.IsSet(viperKey) {
		return viper.GetBool(viperKey)
	}
	if cmd != nil && flag != "" {
		if v, err := cmd.Flags().GetBool(flag); err == nil {
			return v
		}
	}
	return false
}

func FlagOrViperInt(cmd *cobra.Command, flag, viperKey string) int {
	if flagChanged(cmd, flag) {
		if v, err := cmd.Flags().GetInt(flag); err == nil {
			return v
		}
	}
	if viperKey != "" && viper.IsSet(viperKey) {
		return viper.GetInt(viperKey)
	}
	if cmd != nil && flag != "" {
		if v, err := cmd.Flags().GetInt(flag); err == nil {
			return v
		}
	}
	return 0
}

func FlagOrViperDuration(cmd *cobra.Command, flag, viperKey string) time.Duration {
	if flagChanged(cmd, flag) {
		if v, err := cmd.Flags().GetDuration(flag); err == nil {
			return v
		}
	}
	if viperKey != "" && viper.IsSet(viperKey) {
		return viper.GetDuration(viperKey)
	}
	if cmd != nil && flag != "" {
		if v, err := cmd.Flags().GetDuration(flag); err == nil {
			return v
		}
	}
	return 0
}

func flagChanged(cmd *cobra.Command, flag string) bool {
	return cmd != nil && flag != "" && cmd.Flags().Changed(flag)
}
