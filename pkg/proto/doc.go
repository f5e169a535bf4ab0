/*
Package proto implements the Hot Rod binary protocol, client side.

# Primitive types

	vInt     unsigned 32 bit integer, 7 bits per byte, high bit set on all
	         but the last byte (1 to 5 bytes)
	vLong    the same for 64 bit integers (1 to 10 bytes)
	string   vInt length followed by UTF-8 bytes
	bytes    vInt length followed by raw bytes

# Request

	+-------+-------+---------+--------+------------+-------+--------------+-------------+-------------+------+
	| magic | msgId | version | opcode | cache name | flags | intelligence | topology id | media types | body |
	| 0xA0  | vLong | byte    | byte   | string     | vInt  | byte         | vInt        | >= 2.9      |      |
	+-------+-------+---------+--------+------------+-------+--------------+-------------+-------------+------+

	flags:
	  bit 0: return the previous value
	client intelligence:
	  0x01 basic
	  0x02 topology aware
	  0x03 hash distribution aware

# Response

	+-------+-------+--------+--------+-----------------+-------------------+------+
	| magic | msgId | opcode | status | topology marker | topology payload  | body |
	| 0xA1  | vLong | byte   | byte   | byte            | if marker is set  |      |
	+-------+-------+--------+--------+-----------------+-------------------+------+

	topology payload:
	  topology id        vInt
	  number of servers  vInt
	  per server         host string, port uint16
	  hash function      byte     (hash aware clients only)
	  number of segments vInt     (if hash function is not 0)
	  per segment        byte owner count, vInt server index per owner

	status:
	  0x00 success
	  0x01 not executed
	  0x02 not found
	  0x03 success, previous value follows
	  0x04 not executed, previous value follows
	  0x50 error, the body is an error string
	  0x81 - 0x86 server errors, the body is an error string

	opcode 0x50 is an error response; its body is an error string.
	opcodes 0x60 - 0x63 are server pushed events: (opcode >> 4) & 0x06 == 0x06

# Expiry

	+-----------+----------------------+---------------------+
	| unit byte | lifespan amount      | max idle amount     |
	| ls<<4|mi  | vLong, if not 7 or 8 | vLong, if not 7 or 8|
	+-----------+----------------------+---------------------+

	unit: s=0 ms=1 ns=2 us=3 m=4 h=5 d=6 default=7 infinite=8

# Entry metadata

	flags byte (0x01 infinite lifespan, 0x02 infinite max idle), then
	created int64 + lifespan vInt unless 0x01 is set, then last used int64 +
	max idle vInt unless 0x02 is set, then an 8 byte version.

Decoding never blocks. Every reader returns ErrIncomplete when the bytes it
needs have not arrived yet; the caller rewinds its ReplayBuffer to the mark
and retries once more data is appended.
*/
package proto
