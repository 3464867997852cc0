package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AudricHarris/Z-Chat/internal/config"
	"github.com/AudricHarris/Z-Chat/internal/database"
	"github.com/AudricHarris/Z-Chat/internal/handler"
	"github.com/AudricHarris/Z-Chat/internal/hub"
	"github.com/AudricHarris/Z-Chat/internal/store"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func init() {
	config.LoadConfig()
}

func main() {
	// Connect to the database; a failed connection degrades to file-only
	// persistence instead of aborting.
	var db *gorm.DB
	if config.AppConfig.DatabaseURL != "" {
		var err error
		db, err = database.Connect(config.AppConfig.DatabaseURL)
		if err != nil {
			log.Printf("Warning: database unavailable, using snapshot file persistence: %v", err)
			db = nil
		}
	} else {
		log.Println("No DATABASE_URL configured, using snapshot file persistence")
	}

	gw := store.NewGateway(db, config.AppConfig.SnapshotFile)
	graph := store.NewGraph(gw)
	convos := store.NewConversations(gw)

	st, err := gw.LoadAll()
	if err != nil {
		log.Printf("Warning: failed to load persisted state: %v", err)
	}
	graph.Load(st.Users)
	convos.Load(st.Conversations)

	h := hub.NewHub()
	dispatcher := handler.NewDispatcher(h, graph, convos, gw)
	gw.SetStateProvider(dispatcher.CaptureState)

	router := gin.Default()

	// Health check endpoint
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	router.GET("/ws", handler.ServeWs(dispatcher, h))

	if dir := config.AppConfig.StaticDir; dir != "" {
		router.Static("/app", dir)
	}

	// Periodic snapshots, plus a final one on shutdown signals.
	ticker := time.NewTicker(config.AppConfig.SnapshotInterval())
	defer ticker.Stop()
	go func() {
		for range ticker.C {
			dispatcher.Snapshot()
		}
	}()

	go func() {
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
		<-sigs
		log.Println("Saving snapshot before shutdown...")
		dispatcher.Snapshot()
		gw.Close()
		os.Exit(0)
	}()

	log.Printf("Server is running on %s", config.AppConfig.ListenAddr)
	log.Fatal(router.Run(config.AppConfig.ListenAddr))
}
