// Command guildhall-bootstrap creates the founding super_admin.
//
// A fresh deployment has an empty member directory, and every write on
// the API needs an authenticated member, so the first super_admin has
// to be inserted out of band. The command is idempotent: rerunning it
// with the same external identity reports the existing member.
package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/guildhall-io/guildhall/pkg/audit"
	"github.com/guildhall-io/guildhall/pkg/directory"
	"github.com/guildhall-io/guildhall/pkg/grants"
	"github.com/guildhall-io/guildhall/pkg/notify"
	"github.com/guildhall-io/guildhall/pkg/requests"
	"github.com/guildhall-io/guildhall/pkg/storage/postgres"
)

func main() {
	postgresURL := flag.String("postgres-url", os.Getenv("GUILDHALL_POSTGRES_URL"), "PostgreSQL connection URL")
	fullName := flag.String("full-name", "", "Full name of the founding super_admin")
	designation := flag.String("designation", "", "Optional free-form designation")
	externalIdentity := flag.String("external-identity", "", "Identity provider subject to link")
	migrate := flag.Bool("migrate", true, "Run schema migrations before inserting")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall command timeout")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if *postgresURL == "" {
		log.Fatal("postgres URL is required (-postgres-url or GUILDHALL_POSTGRES_URL)")
	}
	if *fullName == "" {
		log.Fatal("-full-name is required")
	}
	if *externalIdentity == "" {
		log.Fatal("-external-identity is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := postgres.Connect(ctx, postgres.DefaultConnectionConfig(*postgresURL))
	if err != nil {
		log.WithError(err).Fatal("failed to connect to postgres")
	}
	defer db.Close()

	if *migrate {
		var migrations []postgres.Migration
		migrations = append(migrations, directory.Migrations()...)
		migrations = append(migrations, grants.Migrations()...)
		migrations = append(migrations, notify.Migrations()...)
		migrations = append(migrations, requests.Migrations()...)
		migrations = append(migrations, audit.Migrations()...)
		if err := postgres.RunMigrations(ctx, db, migrations); err != nil {
			log.WithError(err).Fatal("failed to run migrations")
		}
		log.Info("schema is up to date")
	}

	var existingID int64
	err = db.QueryRowContext(ctx,
		`SELECT id FROM members WHERE external_identity = $1`, *externalIdentity,
	).Scan(&existingID)
	switch {
	case err == nil:
		log.WithFields(logrus.Fields{
			"id":       existingID,
			"identity": *externalIdentity,
		}).Info("identity is already linked to a member, nothing to do")
		return
	case err != sql.ErrNoRows:
		log.WithError(err).Fatal("failed to check existing identity")
	}

	var id int64
	err = db.QueryRowContext(ctx, `
		INSERT INTO members (full_name, designation, role, external_identity)
		VALUES ($1, $2, 'super_admin', $3)
		RETURNING id
	`, *fullName, *designation, *externalIdentity).Scan(&id)
	if err != nil {
		log.WithError(err).Fatal("failed to create super_admin")
	}

	log.WithFields(logrus.Fields{
		"id":        id,
		"full_name": *fullName,
		"identity":  *externalIdentity,
	}).Info("founding super_admin created")
}
