/*
Package vizsession authenticates connections to a stateful visualization
server and binds each one to exactly one server-side session.

A client names its session with the bokeh-session-id request parameter. When
signing is enabled the identifier has the form payload.signature, where the
signature is an HMAC-SHA256 of the payload under the server's secret key,
and it is verified in constant time. Requests without an identifier are given
a fresh one, or rejected when the server does not mint identifiers.

The Registry is the only place sessions are created. However many requests
race on a new identifier, the session is constructed once and every request
receives the same *Session. A failed construction is reported to all waiting
requests and the identifier can be created again afterwards.

Usage:

	cfg, err := vizsession.LoadServerConfig("") // BOKEH_SIGN_SESSIONS, BOKEH_SECRET_KEY, ...
	if err != nil {
		log.Fatal(err)
	}

	store, err := vizsession.NewSQLiteStore("sessions.db")
	if err != nil {
		log.Fatal(err)
	}

	mgr, err := vizsession.NewManager(vizsession.Config{
		Server: cfg,
		Store:  store,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer mgr.Close()

	http.Handle("/", mgr.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, _ := vizsession.HandleFromContext(r.Context())
		h.Session().Set("last_seen", time.Now())
	})))

Frameworks other than net/http call Manager.OnRequestStart, OnRequestEnd and
OnSessionClear directly at the matching points of their request lifecycle.

Store Implementations:

  - SQLite: modernc.org/sqlite, CGO-free.
  - PostgreSQL: github.com/lib/pq.
  - Memcached: github.com/bradfitz/gomemcache.
  - Redis: github.com/redis/go-redis/v9.

Live sessions are never evicted from the Registry. Expiry in the stores only
limits what a restarted process can restore.
*/
package vizsession
