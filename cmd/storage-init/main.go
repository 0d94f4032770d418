package main

import (
	"context"
	"errors"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	log "github.com/sirupsen/logrus"

	"weather-tasks/config"
	"weather-tasks/storage"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("env file: %v", err)
	}
	cfg, err := config.LoadServer()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	config.ConfigureLogger(log.StandardLogger(), cfg.Debug, cfg.LogFormat)
	log.WithField("backend", cfg.Backend).Info("storage init starting")

	ctx := context.Background()

	switch cfg.Backend {
	case config.BackendSQLite:
		s, err := storage.OpenSQLite(cfg.DBPath)
		if err != nil {
			log.Fatalf("sqlite: %v", err)
		}
		if err := s.Close(); err != nil {
			log.Fatalf("sqlite close: %v", err)
		}
		log.WithField("path", cfg.DBPath).Info("sqlite schema ready")
	case config.BackendAzTables:
		if err := createTable(ctx, cfg.StorageConnString, cfg.TasksTable); err != nil {
			log.Fatalf("create table: %v", err)
		}
		log.WithField("table", cfg.TasksTable).Info("table ready")
	}

	if cfg.TaskEventsQueue != "" {
		if err := createQueue(ctx, cfg.StorageConnString, cfg.TaskEventsQueue); err != nil {
			log.Fatalf("create queue: %v", err)
		}
		log.WithField("queue", cfg.TaskEventsQueue).Info("queue ready")
	}

	log.Info("storage init complete")
}

func createTable(ctx context.Context, connStr, name string) error {
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, nil)
	if err != nil {
		return err
	}
	_, err = svc.NewClient(name).CreateTable(ctx, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == string(aztables.TableAlreadyExists) {
			return nil
		}
		return err
	}
	return nil
}

func createQueue(ctx context.Context, connStr, name string) error {
	q, err := azqueue.NewQueueClientFromConnectionString(connStr, name, nil)
	if err != nil {
		return err
	}
	_, err = q.Create(ctx, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) && respErr.ErrorCode == "QueueAlreadyExists" {
			return nil
		}
		return err
	}
	return nil
}
