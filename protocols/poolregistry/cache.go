package poolregistry

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/defistate/defistate-arb-go/protocols/uniswapv3"
	"github.com/ethereum/go-ethereum/common"
)

// CacheHeader is the first row of every pool cache file.
var CacheHeader = []string{"address", "version", "token0", "token1", "decimals0", "decimals1", "fee"}

var ErrBadCache = errors.New("bad pool cache")

// ReadCache loads a pool cache. A missing file yields an empty map.
func ReadCache(path string) (map[common.Address]uniswapv3.Pool, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return map[common.Address]uniswapv3.Pool{}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeCache(f)
}

// DecodeCache parses the cache format from r.
func DecodeCache(r io.Reader) (map[common.Address]uniswapv3.Pool, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(CacheHeader)

	pools := make(map[common.Address]uniswapv3.Pool)
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return pools, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadCache, err)
	}
	for i, h := range CacheHeader {
		if header[i] != h {
			return nil, fmt.Errorf("%w: unexpected header %q", ErrBadCache, header)
		}
	}

	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return pools, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadCache, err)
		}
		pool, err := decodeRow(row)
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, fmt.Errorf("%w: line %d: %w", ErrBadCache, line, err)
		}
		pools[pool.Address] = pool
	}
}

func decodeRow(row []string) (uniswapv3.Pool, error) {
	for _, i := range []int{0, 2, 3} {
		if !common.IsHexAddress(row[i]) {
			return uniswapv3.Pool{}, fmt.Errorf("invalid address %q", row[i])
		}
	}
	d0, err := strconv.ParseUint(row[4], 10, 8)
	if err != nil {
		return uniswapv3.Pool{}, fmt.Errorf("decimals0: %w", err)
	}
	d1, err := strconv.ParseUint(row[5], 10, 8)
	if err != nil {
		return uniswapv3.Pool{}, fmt.Errorf("decimals1: %w", err)
	}
	fee, err := strconv.ParseUint(row[6], 10, 32)
	if err != nil {
		return uniswapv3.Pool{}, fmt.Errorf("fee: %w", err)
	}
	return uniswapv3.Pool{
		Address:   common.HexToAddress(row[0]),
		Version:   uniswapv3.ParseDexVariant(row[1]),
		Token0:    common.HexToAddress(row[2]),
		Token1:    common.HexToAddress(row[3]),
		Decimals0: uint8(d0),
		Decimals1: uint8(d1),
		Fee:       uint32(fee),
	}, nil
}

// EncodeCache writes pools to w in address order.
func EncodeCache(w io.Writer, pools map[common.Address]uniswapv3.Pool) error {
	addrs := make([]common.Address, 0, len(pools))
	for addr := range pools {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i].Cmp(addrs[j]) < 0 })

	cw := csv.NewWriter(w)
	if err := cw.Write(CacheHeader); err != nil {
		return err
	}
	for _, addr := range addrs {
		p := pools[addr]
		row := []string{
			p.Address.Hex(),
			p.Version.String(),
			p.Token0.Hex(),
			p.Token1.Hex(),
			strconv.Itoa(int(p.Decimals0)),
			strconv.Itoa(int(p.Decimals1)),
			strconv.FormatUint(uint64(p.Fee), 10),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCache atomically replaces the cache file at path.
func WriteCache(path string, pools map[common.Address]uniswapv3.Pool) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := EncodeCache(tmp, pools); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
