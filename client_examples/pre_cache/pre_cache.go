package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/BeamlakAschalew/flixquest-betterplayer/client"
	"github.com/BeamlakAschalew/flixquest-betterplayer/event"
	"github.com/BeamlakAschalew/flixquest-betterplayer/service/api"

	log "github.com/sirupsen/logrus"
)

func main() {
	logger := log.WithFields(log.Fields{
		"package":  "main",
		"function": "main",
	})

	// Parse cli parameters
	endpoint := flag.String("endpoint", ":12030", "service endpoint")
	flag.Parse()
	args := flag.Args()

	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "Give a media url!\n")
		os.Exit(1)
	}

	mediaURL := args[0]

	playerClient := client.NewPlayerServiceClient(*endpoint, time.Minute)
	err := playerClient.Connect()
	if err != nil {
		logger.Errorf("%+v", err)
		panic(err)
	}

	defer playerClient.Disconnect()

	completed := make(chan event.Event, 1)
	unsubscribe, err := playerClient.SubscribePreCacheEvents(func(e event.Event) {
		if e.Key != mediaURL {
			return
		}

		if e.Type == event.TypePreCacheProgress {
			fmt.Printf("> %d%%\n", e.Percent)
		} else if e.Type == event.TypePreCacheCompleted {
			completed <- e
		}
	})
	if err != nil {
		logger.Errorf("%+v", err)
		panic(err)
	}
	defer unsubscribe()

	err = playerClient.PreCache(&api.PreCacheRequest{
		URL: mediaURL,
	})
	if err != nil {
		logger.Errorf("%+v", err)
		panic(err)
	}

	e := <-completed
	fmt.Printf("DONE: %s\t%s\t%d bytes\n", mediaURL, e.Code, e.Bytes)

	stat, err := playerClient.CacheStat()
	if err != nil {
		logger.Errorf("%+v", err)
		panic(err)
	}

	fmt.Printf("CACHE: %s\t%d entries\t%d/%d bytes\n", stat.Directory, stat.Entries, stat.TotalBytes, stat.MaxTotalBytes)
}
