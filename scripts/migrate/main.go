package main

import (
	"flag"
	"log"
	"strings"

	"github.com/gocql/gocql"
)

// Schema lives here rather than in service startup so services never race
// each other on DDL.
var tables = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		convo_key text,
		id bigint,
		sender_id text,
		receiver_id text,
		body text,
		file_url text,
		file_type text,
		is_read boolean,
		created_at timestamp,
		PRIMARY KEY (convo_key, id)
	) WITH CLUSTERING ORDER BY (id DESC)`,

	`CREATE TABLE IF NOT EXISTS conversations (
		convo_key text PRIMARY KEY,
		participant_a text,
		participant_b text,
		last_message_id bigint,
		last_message_text text,
		created_at timestamp,
		updated_at timestamp
	)`,

	`CREATE TABLE IF NOT EXISTS user_conversations (
		user_id text,
		other_user_id text,
		last_updated timestamp,
		PRIMARY KEY (user_id, other_user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS conversation_counters (
		user_id text,
		other_user_id text,
		unread_count counter,
		PRIMARY KEY (user_id, other_user_id)
	)`,

	`CREATE TABLE IF NOT EXISTS connection_requests (
		id bigint PRIMARY KEY,
		sender_id text,
		receiver_id text,
		status text,
		created_at timestamp
	)`,
}

func main() {
	hosts := flag.String("hosts", "localhost:9042", "comma-separated ScyllaDB hosts")
	keyspace := flag.String("keyspace", "chat", "keyspace to create and migrate")
	flag.Parse()

	sysCluster := gocql.NewCluster(strings.Split(*hosts, ",")...)
	sysCluster.Keyspace = "system"
	sysCluster.Consistency = gocql.Quorum
	sysSession, err := sysCluster.CreateSession()
	if err != nil {
		log.Fatalf("connect to system keyspace: %v", err)
	}
	err = sysSession.Query(`CREATE KEYSPACE IF NOT EXISTS ` + *keyspace +
		` WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`).Exec()
	sysSession.Close()
	if err != nil {
		log.Fatalf("create keyspace: %v", err)
	}

	cluster := gocql.NewCluster(strings.Split(*hosts, ",")...)
	cluster.Keyspace = *keyspace
	cluster.Consistency = gocql.Quorum
	session, err := cluster.CreateSession()
	if err != nil {
		log.Fatalf("connect to %s keyspace: %v", *keyspace, err)
	}
	defer session.Close()

	for _, ddl := range tables {
		if err := session.Query(ddl).Exec(); err != nil {
			log.Fatalf("apply DDL: %v\n%s", err, ddl)
		}
	}
	log.Printf("schema up to date in keyspace %s", *keyspace)
}
