// Package catalog lists and describes the objects of the selected database.
//
// Every listing is one metadata query with an explicit schema filter, taken
// from the session's dialect: the current database on MySQL, every non
// system schema on PostgreSQL, and the sqlite_master table with the pragma
// table functions on SQLite. Nothing is cached; every call queries the
// engine again.
//
// Listings are ordered by schema, then name. When a detail lookup for one
// object fails (an exact row count, the columns of a view, the parameters
// of a routine) the object is returned with what could be read and the
// failure is recorded in its Problems. Only a failure of the listing query
// itself is returned as an error.
//
// Usage:
//
//	sess, err := session.Connect(ctx, session.Config{Engine: dialect.MySQL, Host: "localhost", User: "root"})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer sess.Disconnect()
//	if err := sess.SelectDatabase(ctx, "shop"); err != nil {
//		log.Fatal(err)
//	}
//
//	cat := catalog.New(sess)
//	tables, err := cat.ListTables(ctx, schema.CountApproximate)
//	if err != nil {
//		log.Fatal(err)
//	}
//	for _, t := range tables {
//		fmt.Printf("%s %s\n", t.Ref(), t.Kind)
//	}
//
// Row counts are either exact, from SELECT COUNT(*), or approximate, from
// the engine's statistics (table_rows on MySQL, n_live_tup on PostgreSQL).
// The RowSource of a table records which one was used; approximate counts
// can be stale after bulk changes.
package catalog
