package store

import (
	"context"
	"iter"
	"time"

	"gopkg.in/mgo.v2"
	"gopkg.in/mgo.v2/bson"
)

// Mongo speaks the native MongoDB wire protocol.
type Mongo struct {
	opts Options
}

// NewMongo returns a MongoDB adapter.
func NewMongo(opts Options) *Mongo {
	return &Mongo{opts: opts.withDefaults()}
}

func (m *Mongo) Name() string { return "mongo" }

func (m *Mongo) Connect(_ context.Context, host string, port int) (Conn, error) {
	info := &mgo.DialInfo{
		Addrs:    []string{Addr(host, port)},
		Timeout:  m.opts.ConnectTimeout,
		Database: m.opts.Database,
		Username: m.opts.Username,
		Password: m.opts.Password,
	}

	session, err := mgo.DialWithInfo(info)
	if err != nil {
		return nil, connectError(host, port, err)
	}
	session.SetSafe(mongoSafe(m.opts.WriteConcern))
	session.SetSyncTimeout(m.opts.ConnectTimeout)

	m.opts.Logger.Debug("mongo.connect",
		"server", Addr(host, port),
		"db", m.opts.Database,
		"write_concern", string(m.opts.WriteConcern),
	)

	return &mongoConn{session: session, db: m.opts.Database}, nil
}

// mongoSafe maps a WriteConcern onto mgo's safety modes. A nil Safe makes
// mgo fire-and-forget.
func mongoSafe(wc WriteConcern) *mgo.Safe {
	switch wc {
	case WriteNone:
		return nil
	case WriteJournal:
		return &mgo.Safe{J: true}
	case WriteMajority:
		return &mgo.Safe{WMode: "majority"}
	default:
		return &mgo.Safe{}
	}
}

type mongoConn struct {
	session *mgo.Session
	db      string
}

func (c *mongoConn) collection(name string) *mgo.Collection {
	return c.session.DB(c.db).C(name)
}

func (c *mongoConn) Write(_ context.Context, collection string, doc Doc) error {
	if err := c.collection(collection).Insert(toBSON(doc)); err != nil {
		return writeError(collection, err)
	}
	return nil
}

func (c *mongoConn) Clear(_ context.Context, collection string) error {
	if _, err := c.collection(collection).RemoveAll(nil); err != nil {
		return writeError(collection, err)
	}
	return nil
}

func (c *mongoConn) Scan(_ context.Context, collection string) iter.Seq2[Doc, error] {
	return func(yield func(Doc, error) bool) {
		it := c.collection(collection).Find(nil).Iter()

		var raw bson.D
		for it.Next(&raw) {
			if !yield(fromBSON(raw), nil) {
				it.Close()
				return
			}
			raw = nil
		}
		if err := it.Close(); err != nil {
			yield(nil, err)
		}
	}
}

func (c *mongoConn) Close() error {
	c.session.Close()
	return nil
}

func toBSON(doc Doc) bson.D {
	out := make(bson.D, len(doc))
	for i, f := range doc {
		v := f.Value
		if nested, ok := v.(Doc); ok {
			v = toBSON(nested)
		}
		out[i] = bson.DocElem{Name: f.Key, Value: v}
	}
	return out
}

func fromBSON(raw bson.D) Doc {
	doc := make(Doc, 0, len(raw))
	for _, e := range raw {
		doc = append(doc, Field{Key: e.Name, Value: fromBSONValue(e.Value)})
	}
	return doc
}

func fromBSONValue(v any) any {
	switch t := v.(type) {
	case bson.D:
		return fromBSON(t)
	case bson.M:
		doc := make(Doc, 0, len(t))
		for k, val := range t {
			doc = append(doc, Field{Key: k, Value: fromBSONValue(val)})
		}
		return doc
	case bson.ObjectId:
		return t.Hex()
	case time.Time:
		return t.Local()
	default:
		return v
	}
}
