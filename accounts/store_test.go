package accounts

import (
	"path/filepath"
	"testing"

	"github.com/ATMackay/neb-signer/address"
	"github.com/ATMackay/neb-signer/keystore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sampleRecord   = `{"version":4,"id":"0e07b66d-7bfd-490e-bd05-b59659827968","address":"n1Gb7sxoj9s6hGbcwKs5mHWqVaBt1xsdgYN","crypto":{"ciphertext":"4b73b7a18c5c510d558d77c6d2d106cb012c6ce4bd9cf5897a205622a5f47769","cipherparams":{"iv":"225bdebc974f5ec6b905c0db3cbbb292"},"cipher":"aes-128-ctr","kdf":"scrypt","kdfparams":{"dklen":32,"salt":"60f656342434d53b891b8236af857f0590e88383103f9b90e0d7a292a7c6b987","n":4096,"r":8,"p":1},"mac":"5d873fb1b76cb2b8106526ba57a58757e1214f2becc3e61a87a42b5f6d0b2d3f","machash":"sha3256"}}`
	sampleAddress  = "n1Gb7sxoj9s6hGbcwKs5mHWqVaBt1xsdgYN"
	samplePrivKey  = "16f8c87bc189f437993f8674ea8440daa288c4251111f6c6329c77a97aea5a30"
	samplePassword = "123456789"
)

// fastOptions keeps scrypt cheap in tests.
var fastOptions = keystore.Options{N: 16, R: 8, P: 1}

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keystore.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func Test_ImportUnlock(t *testing.T) {
	s, _ := openTestStore(t)

	addr, err := s.Import([]byte(sampleRecord))
	require.NoError(t, err)
	assert.Equal(t, sampleAddress, addr.String())

	r, err := s.Get(addr)
	require.NoError(t, err)
	assert.Equal(t, "0e07b66d-7bfd-490e-bd05-b59659827968", r.ID)

	k, err := s.Unlock(addr, samplePassword)
	require.NoError(t, err)
	assert.Equal(t, samplePrivKey, k.PrivateKeyHex())

	_, err = s.Unlock(addr, "wrong")
	assert.ErrorIs(t, err, keystore.ErrWrongPassphrase)
}

func Test_CreateListDelete(t *testing.T) {
	s, path := openTestStore(t)

	var created []address.Address
	for i := 0; i < 3; i++ {
		k, err := s.Create("pass", &fastOptions)
		require.NoError(t, err)
		created = append(created, k.Address())
	}

	list, err := s.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, created, list)

	require.NoError(t, s.Delete(created[0]))
	assert.ErrorIs(t, s.Delete(created[0]), ErrNotFound)
	_, err = s.Get(created[0])
	assert.ErrorIs(t, err, ErrNotFound)

	// records survive a reopen
	require.NoError(t, s.Close())
	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	list, err = s2.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, created[1:], list)

	k, err := s2.Unlock(created[1], "pass")
	require.NoError(t, err)
	assert.Equal(t, created[1], k.Address())
}

func Test_PutErrors(t *testing.T) {
	s, _ := openTestStore(t)

	r, err := keystore.Unmarshal([]byte(sampleRecord))
	require.NoError(t, err)

	noAddr := *r
	noAddr.Address = ""
	_, err = s.Put(&noAddr)
	assert.ErrorIs(t, err, ErrMissingAddress)

	badAddr := *r
	badAddr.Address = "n1Gb7sxoj9s6hGbcwKs5mHWqVaBt1xsdgYM"
	_, err = s.Put(&badAddr)
	assert.ErrorIs(t, err, address.ErrInvalidFormat)

	_, err = s.Import([]byte(`{"version":`))
	assert.ErrorIs(t, err, keystore.ErrInvalidRecord)

	_, err = s.Unlock(address.Address{}, "x")
	assert.ErrorIs(t, err, ErrNotFound)
}
