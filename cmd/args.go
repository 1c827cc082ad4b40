package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/BeamlakAschalew/flixquest-betterplayer/client"
	cmd_commons "github.com/BeamlakAschalew/flixquest-betterplayer/cmd/commons"
	"github.com/BeamlakAschalew/flixquest-betterplayer/event"
	"github.com/BeamlakAschalew/flixquest-betterplayer/service/api"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

var preCacheCmd = &cobra.Command{
	Use:   "precache <url>",
	Short: "Pre-cache the beginning of a remote media",
	Args:  cobra.ExactArgs(1),
	RunE:  processPreCacheCommand,
}

var stopPreCacheCmd = &cobra.Command{
	Use:   "stop-precache <url or key>",
	Short: "Stop pre-caching a remote media",
	Args:  cobra.ExactArgs(1),
	RunE:  processStopPreCacheCommand,
}

var clearCacheCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Remove cached media not in use",
	Args:  cobra.NoArgs,
	RunE:  processClearCacheCommand,
}

var statCmd = &cobra.Command{
	Use:   "stat",
	Short: "Print media cache usage",
	Args:  cobra.NoArgs,
	RunE:  processStatCommand,
}

func addClientCommands(root *cobra.Command) {
	preCacheCmd.Flags().StringP("key", "k", "", "Set cache key, the url is used if not given")
	preCacheCmd.Flags().Int64P("size", "s", 0, "Set bytes to pre-cache, the service default is used if not given")
	preCacheCmd.Flags().StringToStringP("header", "H", nil, "Set request headers (key=value)")
	preCacheCmd.Flags().BoolP("wait", "w", false, "Wait until pre-caching finishes")

	for _, command := range []*cobra.Command{preCacheCmd, stopPreCacheCmd, clearCacheCmd, statCmd} {
		cmd_commons.SetClientFlags(command)
		root.AddCommand(command)
	}
}

// connect connects to the running service
func connect(command *cobra.Command) (*client.PlayerServiceClient, error) {
	endpoint, timeout := cmd_commons.GetClientFlags(command)

	playerClient := client.NewPlayerServiceClient(endpoint, timeout)
	err := playerClient.Connect()
	if err != nil {
		return nil, err
	}
	return playerClient, nil
}

func processPreCacheCommand(command *cobra.Command, args []string) error {
	logger := log.WithFields(log.Fields{
		"package":  "main",
		"function": "processPreCacheCommand",
	})

	cont, err := cmd_commons.ProcessCommonFlags(command)
	if err != nil || !cont {
		return err
	}

	key, _ := command.Flags().GetString("key")
	size, _ := command.Flags().GetInt64("size")
	headers, _ := command.Flags().GetStringToString("header")
	wait, _ := command.Flags().GetBool("wait")

	playerClient, err := connect(command)
	if err != nil {
		return err
	}
	defer playerClient.Disconnect()

	request := &api.PreCacheRequest{
		URL:          args[0],
		Key:          key,
		Headers:      headers,
		PreCacheSize: size,
	}

	contentKey := key
	if len(contentKey) == 0 {
		contentKey = request.URL
	}

	if !wait {
		return playerClient.PreCache(request)
	}

	done := make(chan event.Event, 1)
	unsubscribe, err := playerClient.SubscribePreCacheEvents(func(e event.Event) {
		if e.Key != contentKey {
			return
		}

		switch e.Type {
		case event.TypePreCacheProgress:
			logger.Debugf("%q pre-cached %d%%", e.Key, e.Percent)
		case event.TypePreCacheCompleted:
			select {
			case done <- e:
			default:
			}
		}
	})
	if err != nil {
		return err
	}
	defer unsubscribe()

	err = playerClient.PreCache(request)
	if err != nil {
		return err
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	select {
	case e := <-done:
		if len(e.Message) > 0 {
			return xerrors.Errorf("pre-caching %q failed: %s", contentKey, e.Message)
		}
		fmt.Fprintf(command.OutOrStdout(), "%s\t%s\t%s\n", contentKey, e.Code, humanize.Bytes(uint64(e.Bytes)))
	case <-interrupt:
		_, err = playerClient.StopPreCache(request.URL, key)
		return err
	}

	return nil
}

func processStopPreCacheCommand(command *cobra.Command, args []string) error {
	cont, err := cmd_commons.ProcessCommonFlags(command)
	if err != nil || !cont {
		return err
	}

	playerClient, err := connect(command)
	if err != nil {
		return err
	}
	defer playerClient.Disconnect()

	stopped, err := playerClient.StopPreCache(args[0], args[0])
	if err != nil {
		return err
	}

	if !stopped {
		fmt.Fprintf(command.OutOrStdout(), "%q is not being pre-cached\n", args[0])
	}
	return nil
}

func processClearCacheCommand(command *cobra.Command, args []string) error {
	cont, err := cmd_commons.ProcessCommonFlags(command)
	if err != nil || !cont {
		return err
	}

	playerClient, err := connect(command)
	if err != nil {
		return err
	}
	defer playerClient.Disconnect()

	removed, err := playerClient.ClearCache()
	if err != nil {
		return err
	}

	fmt.Fprintf(command.OutOrStdout(), "removed %d cache entries\n", removed)
	return nil
}

func processStatCommand(command *cobra.Command, args []string) error {
	cont, err := cmd_commons.ProcessCommonFlags(command)
	if err != nil || !cont {
		return err
	}

	playerClient, err := connect(command)
	if err != nil {
		return err
	}
	defer playerClient.Disconnect()

	stat, err := playerClient.CacheStat()
	if err != nil {
		return err
	}

	out := command.OutOrStdout()
	fmt.Fprintf(out, "directory:\t%s\n", stat.Directory)
	fmt.Fprintf(out, "entries:\t%d\n", stat.Entries)
	fmt.Fprintf(out, "used:\t%s / %s (%s per file)\n", humanize.Bytes(uint64(stat.TotalBytes)), humanize.Bytes(uint64(stat.MaxTotalBytes)), humanize.Bytes(uint64(stat.MaxPerFileBytes)))

	for _, key := range stat.PreCaching {
		fmt.Fprintf(out, "pre-caching:\t%s\n", key)
	}
	return nil
}
