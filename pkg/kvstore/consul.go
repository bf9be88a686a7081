package kvstore

// Adapted from https://github.com/philippgille/gokv/consul with string/any accessors,
// prefix listing and transactional batches.

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fystack/plinko-engine/pkg/common/enum"
	"github.com/fystack/plinko-engine/pkg/common/utils"
	"github.com/fystack/plinko-engine/pkg/infra"
	"github.com/hashicorp/consul/api"
)

// consulTxnLimit is the maximum number of operations Consul accepts in one transaction.
const consulTxnLimit = 64

// ConsulClient implements infra.KVStore
type ConsulClient struct {
	c      *api.KV
	folder string
	codec  infra.Codec
}

// Options are the options for the Consul client.
type Options struct {
	// URI scheme for the Consul server ("http" by default).
	Scheme string
	// Address of the Consul server, including port number ("127.0.0.1:8500" by default).
	Address string
	// Directory under which to store the key-value pairs.
	Folder string
	// Encoding format (infra.JSON by default).
	Codec infra.Codec

	Token    string
	HttpAuth *api.HttpBasicAuth
}

var DefaultConsulOptions = Options{
	Scheme:  "http",
	Address: "127.0.0.1:8500",
	Codec:   infra.JSON,
}

func NewConsulClient(options Options) (ConsulClient, error) {
	config := api.DefaultConfig()
	if options.Scheme != "" {
		config.Scheme = options.Scheme
	}
	if options.Address != "" {
		config.Address = options.Address
	} else {
		config.Address = DefaultConsulOptions.Address
	}
	if options.Token != "" {
		config.Token = options.Token
	}
	if options.HttpAuth != nil && options.HttpAuth.Username != "" {
		config.HttpAuth = options.HttpAuth
	}
	if options.Codec == nil {
		options.Codec = DefaultConsulOptions.Codec
	}

	client, err := api.NewClient(config)
	if err != nil {
		return ConsulClient{}, err
	}

	return ConsulClient{
		c:      client.KV(),
		folder: options.Folder,
		codec:  options.Codec,
	}, nil
}

func (c ConsulClient) key(k string) string {
	if c.folder != "" {
		return c.folder + "/" + k
	}
	return k
}

func (c ConsulClient) GetName() string {
	return string(enum.KVStoreTypeConsul)
}

func (c ConsulClient) Set(k string, v string) error {
	if k == "" {
		return ErrKeyEmpty
	}
	_, err := c.c.Put(&api.KVPair{Key: c.key(k), Value: []byte(v)}, nil)
	return err
}

func (c ConsulClient) Get(k string) (string, error) {
	return c.GetWithOptions(k, nil)
}

// GetWithOptions retrieves the stored value using the given query options (caching, consistency).
func (c ConsulClient) GetWithOptions(k string, queryOptions *api.QueryOptions) (string, error) {
	if k == "" {
		return "", ErrKeyEmpty
	}
	kvPair, _, err := c.c.Get(c.key(k), queryOptions)
	if err != nil {
		return "", err
	}
	if kvPair == nil {
		return "", ErrKeyNotFound
	}
	return string(kvPair.Value), nil
}

func (c ConsulClient) SetAny(k string, v any) error {
	if err := checkKeyAndValue(k, v); err != nil {
		return err
	}
	data, err := c.codec.Marshal(v)
	if err != nil {
		return err
	}
	_, err = c.c.Put(&api.KVPair{Key: c.key(k), Value: data}, nil)
	return err
}

// SetBatch writes values in transactions of at most consulTxnLimit operations.
// Each transaction is atomic; the batch as a whole is not.
func (c ConsulClient) SetBatch(values map[string]any) error {
	keys := make([]string, 0, len(values))
	for k, v := range values {
		if err := checkKeyAndValue(k, v); err != nil {
			return err
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, chunk := range utils.ChunkBySize(keys, consulTxnLimit) {
		ops := make(api.KVTxnOps, 0, len(chunk))
		for _, k := range chunk {
			data, err := c.codec.Marshal(values[k])
			if err != nil {
				return fmt.Errorf("encode %s: %w", k, err)
			}
			ops = append(ops, &api.KVTxnOp{Verb: api.KVSet, Key: c.key(k), Value: data})
		}
		ok, resp, _, err := c.c.Txn(ops, nil)
		if err != nil {
			return err
		}
		if !ok {
			if resp != nil && len(resp.Errors) > 0 {
				return fmt.Errorf("consul txn rolled back: %s", resp.Errors[0].What)
			}
			return errors.New("consul txn rolled back")
		}
	}
	return nil
}

// GetAny decodes the stored value into v. If no value is found it returns (false, nil).
func (c ConsulClient) GetAny(k string, v any) (bool, error) {
	if err := checkKeyAndValue(k, v); err != nil {
		return false, err
	}
	kvPair, _, err := c.c.Get(c.key(k), nil)
	if err != nil {
		return false, err
	}
	if kvPair == nil {
		return false, nil
	}
	return true, c.codec.Unmarshal(kvPair.Value, v)
}

func (c ConsulClient) List(prefix string) ([]*infra.KVPair, error) {
	if prefix == "" {
		return nil, errors.New("prefix is empty")
	}

	kvPairs, _, err := c.c.List(c.key(prefix), nil)
	if err != nil {
		return nil, err
	}

	result := make([]*infra.KVPair, len(kvPairs))
	for i, kvPair := range kvPairs {
		key := kvPair.Key
		if c.folder != "" {
			key = strings.TrimPrefix(key, c.folder+"/")
		}
		result[i] = &infra.KVPair{Key: key, Value: kvPair.Value}
	}
	return result, nil
}

// Delete deletes the stored value; deleting a missing key is not an error.
func (c ConsulClient) Delete(k string) error {
	if k == "" {
		return ErrKeyEmpty
	}
	_, err := c.c.Delete(c.key(k), nil)
	return err
}

// Close is a no-op for Consul.
func (c ConsulClient) Close() error {
	return nil
}
