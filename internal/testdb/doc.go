// Package testdb provides utilities for database integration tests.
//
// Each test runs inside its own transaction, which is rolled back when the
// test completes, so tests can run in parallel against one database without
// cleanup:
//
//	func TestMyFeature(t *testing.T) {
//	    t.Parallel()
//	    db := testdb.GetTestDBWithT(t)
//
//	    testdb.WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
//	        taskStore := postgres.NewPostgresAdScriptTaskStore(tx, nil)
//	        // ...
//	    })
//	}
//
// Tests are skipped when no database URL is configured. The schema is brought
// up to date with the embedded migrations the first time a connection is made.
package testdb
